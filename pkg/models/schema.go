package models

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema represents the JSON Schema of a node payload.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Format      string               `json:"format,omitempty"`
	Minimum     *float64             `json:"minimum,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	MinItems    *int                 `json:"minItems,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func text(description string) *Property {
	return &Property{Type: "string", Description: description}
}

func numericTypeProperty() *Property {
	return &Property{Enum: []any{string(NumericTypeInteger), string(NumericTypeDecimal)}}
}

func withHeading(properties map[string]*Property) map[string]*Property {
	properties["title"] = text("Step title shown to the patient")
	properties["description"] = text("Step description shown to the patient")

	return properties
}

// NodeSchemas returns the payload schema of every node kind.
func NodeSchemas() map[NodeKind]*JSONSchema {
	return map[NodeKind]*JSONSchema{
		NodeKindStart:     {Type: "object", Title: "Start", Properties: withHeading(map[string]*Property{})},
		NodeKindFormStart: {Type: "object", Title: "Form start", Properties: withHeading(map[string]*Property{})},
		NodeKindFormEnd:   {Type: "object", Title: "Form end", Properties: withHeading(map[string]*Property{})},
		NodeKindEnd: {
			Type:  "object",
			Title: "End",
			Properties: withHeading(map[string]*Property{
				"message": text("Closing message"),
			}),
		},
		NodeKindFormSelect: {
			Type:     "object",
			Title:    "Form",
			Required: []string{"form_id"},
			Properties: withHeading(map[string]*Property{
				"form_id": {Type: "string", MinLength: ptr(1)},
			}),
		},
		NodeKindDelay: {
			Type:     "object",
			Title:    "Delay",
			Required: []string{"quantity", "unit"},
			Properties: withHeading(map[string]*Property{
				"quantity": {Type: "integer", Minimum: ptr(1.0)},
				"unit":     {Enum: []any{string(DelayUnitMinutes), string(DelayUnitHours), string(DelayUnitDays)}},
			}),
		},
		NodeKindQuestion: {
			Type:     "object",
			Title:    "Question",
			Required: []string{"answer_type"},
			Properties: withHeading(map[string]*Property{
				"nomenclatura": text("Variable name of the answer"),
				"answer_type": {Enum: []any{
					string(AnswerTypeText),
					string(AnswerTypeNumber),
					string(AnswerTypeSingleChoice),
					string(AnswerTypeMultipleChoice),
					string(AnswerTypeYesNo),
					string(AnswerTypeDate),
				}},
				"options":      {Type: "array", Items: &Property{Type: "string"}},
				"numeric_type": numericTypeProperty(),
				"prefix":       text("Rendered before numeric answers"),
				"suffix":       text("Rendered after numeric answers"),
				"optional":     {Type: "boolean"},
			}),
		},
		NodeKindCalculator: {
			Type:     "object",
			Title:    "Calculator",
			Required: []string{"fields", "formula"},
			Properties: withHeading(map[string]*Property{
				"nomenclatura": text("Variable name of the result"),
				"formula":      {Type: "string", MinLength: ptr(1)},
				"fields": {
					Type:     "array",
					MinItems: ptr(1),
					Items: &Property{
						Type:     "object",
						Required: []string{"nomenclatura"},
						Properties: map[string]*Property{
							"nomenclatura": {Type: "string", MinLength: ptr(1)},
							"label":        text("Field label"),
							"numeric_type": numericTypeProperty(),
							"prefix":       text("Rendered before the value"),
							"suffix":       text("Rendered after the value"),
						},
					},
				},
				"result_prefix": text("Rendered before the result"),
				"result_suffix": text("Rendered after the result"),
			}),
		},
		NodeKindCondition: {
			Type:  "object",
			Title: "Condition",
			Properties: withHeading(map[string]*Property{
				"rules": {
					Type: "array",
					Items: &Property{
						Type:     "object",
						Required: []string{"handle"},
						Properties: map[string]*Property{
							"handle":     {Type: "string"},
							"label":      text("Branch label"),
							"expression": text("Predicate over collected responses"),
							"default":    {Type: "boolean"},
						},
					},
				},
			}),
		},
	}
}

var compiledSchemas = sync.OnceValues(func() (map[NodeKind]*gojsonschema.Schema, error) {
	compiled := make(map[NodeKind]*gojsonschema.Schema)

	for kind, schema := range NodeSchemas() {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", kind, err)
		}

		compiled[kind] = s
	}

	return compiled, nil
})

// ValidateNodeSchema checks raw node data against the schema of its kind.
func ValidateNodeSchema(kind NodeKind, raw map[string]any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}

	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNodeKind, kind)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidNodeData, strings.Join(messages, "; "))
	}

	return nil
}
