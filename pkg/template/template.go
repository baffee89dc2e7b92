// Package template renders the patient-facing messages of a flow with the
// answers collected so far.
package template

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/cast"
)

// NeedsTemplating reports whether message contains template actions.
func NeedsTemplating(message string) bool {
	return strings.Contains(message, "{{")
}

// Render executes message against responses, keyed by nomenclatura. Missing
// answers render as an empty string.
func Render(message string, responses map[string]any) (string, error) {
	if !NeedsTemplating(message) {
		return message, nil
	}

	tmpl, err := template.
		New("message").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"round": func(places int, value any) string {
				number, err := cast.ToFloat64E(value)
				if err != nil {
					return cast.ToString(value)
				}

				return strings.Replace(fmt.Sprintf("%.*f", places, number), ".", ",", 1)
			},
			"default": func(fallback, value any) any {
				if value == nil || cast.ToString(value) == "" {
					return fallback
				}

				return value
			},
			"yesno": func(value any) string {
				if cast.ToBool(value) {
					return "sim"
				}

				return "não"
			},
			"join": func(sep string, value any) string {
				return strings.Join(cast.ToStringSlice(value), sep)
			},
		}).Parse(message)
	if err != nil {
		return "", fmt.Errorf("failed to parse message template: %w", err)
	}

	data := responses
	if data == nil {
		data = map[string]any{}
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to render message template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
