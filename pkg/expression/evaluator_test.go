package expression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBool(t *testing.T) {
	t.Parallel()

	evaluator := New()

	testCases := []struct {
		name       string
		expression string
		vars       map[string]any
		want       bool
	}{
		{"greater than", "idade > 18", map[string]any{"idade": 30}, true},
		{"not greater than", "idade > 18", map[string]any{"idade": 15}, false},
		{"string equality", `fumante === "sim"`, map[string]any{"fumante": "sim"}, true},
		{"boolean answer", "gestante", map[string]any{"gestante": true}, true},
		{"via responses object", `responses["pressão"] >= 140`, map[string]any{"pressão": 150.5}, true},
		{"combined", "idade > 60 && imc >= 30", map[string]any{"idade": 65, "imc": 31.2}, true},
		{"choice by index", `sintomas[1] === "febre"`, map[string]any{"sintomas": []any{"tosse", "febre"}}, true},
		{"truthy number", "1", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := evaluator.EvaluateBool(tc.expression, tc.vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateBool_Errors(t *testing.T) {
	t.Parallel()

	evaluator := New()

	_, err := evaluator.EvaluateBool("", nil)
	require.ErrorIs(t, err, ErrEmptyExpression)

	_, err = evaluator.EvaluateBool("idade >", map[string]any{"idade": 1})
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "idade >", evalErr.Expression)

	_, err = evaluator.EvaluateBool("desconhecida > 1", nil)
	require.Error(t, err)
}

func TestEvaluateNumber(t *testing.T) {
	t.Parallel()

	evaluator := New()

	got, err := evaluator.EvaluateNumber("peso / (altura * altura)", map[string]any{"peso": 80, "altura": 2.0})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, got, 1e-9)

	_, err = evaluator.EvaluateNumber("peso / 0", map[string]any{"peso": 80})
	require.ErrorIs(t, err, ErrNotANumber)

	_, err = evaluator.EvaluateNumber(`"texto"`, nil)
	require.ErrorIs(t, err, ErrNotANumber)
}

func TestEvaluate_Timeout(t *testing.T) {
	t.Parallel()

	evaluator := New(WithTimeout(20 * time.Millisecond))

	start := time.Now()
	_, err := evaluator.EvaluateBool("while (true) {}", nil)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}
