package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	responses := map[string]any{
		"nome":     "Maria",
		"idade":    float64(30),
		"imc":      22.8571,
		"fumante":  false,
		"sintomas": []string{"tosse", "febre"},
	}

	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{name: "plain text", message: "Obrigado!", expected: "Obrigado!"},
		{name: "field", message: "Obrigado, {{ .nome }}.", expected: "Obrigado, Maria."},
		{name: "number", message: "Idade: {{ .idade }}", expected: "Idade: 30"},
		{name: "rounded", message: "Seu IMC é {{ round 1 .imc }}", expected: "Seu IMC é 22,9"},
		{name: "missing answer", message: "Peso: {{ .peso }}", expected: "Peso: "},
		{name: "default", message: "Peso: {{ default \"não informado\" .peso }}", expected: "Peso: não informado"},
		{name: "yes or no", message: "Fumante: {{ yesno .fumante }}", expected: "Fumante: não"},
		{name: "list", message: "Sintomas: {{ join \", \" .sintomas }}", expected: "Sintomas: tosse, febre"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := Render(tt.message, responses)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_NilResponses(t *testing.T) {
	t.Parallel()

	result, err := Render("Olá {{ .nome }}", nil)
	require.NoError(t, err)
	assert.Equal(t, "Olá ", result)
}

func TestRender_InvalidTemplate(t *testing.T) {
	t.Parallel()

	_, err := Render("Olá {{ .nome ", nil)
	require.Error(t, err)

	_, err = Render("{{ round .idade }}", map[string]any{"idade": 1})
	require.Error(t, err)
}
