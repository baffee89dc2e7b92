package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeData is the closed set of node payloads. Only types in this package
// implement it.
type NodeData interface {
	Kind() NodeKind
	StepHeading() Heading
	isNodeData()
}

// Heading carries the text shown to the patient for a step.
type Heading struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// DelayUnit is the unit of a delay quantity.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// AnswerType is the kind of answer a question expects.
type AnswerType string

const (
	AnswerTypeText           AnswerType = "text"
	AnswerTypeNumber         AnswerType = "number"
	AnswerTypeSingleChoice   AnswerType = "single-choice"
	AnswerTypeMultipleChoice AnswerType = "multiple-choice"
	AnswerTypeYesNo          AnswerType = "yes-no"
	AnswerTypeDate           AnswerType = "date"
)

// NumericType selects how numeric answers are parsed.
type NumericType string

const (
	NumericTypeInteger NumericType = "integer"
	NumericTypeDecimal NumericType = "decimal"
)

type StartData struct {
	Heading
}

type EndData struct {
	Heading

	Message string `json:"message,omitempty"`
}

type FormStartData struct {
	Heading
}

type FormEndData struct {
	Heading
}

// FormSelectData presents a previously registered form; the whole form is
// answered as a single step.
type FormSelectData struct {
	Heading

	FormID string `json:"form_id"`
}

// DelayData suspends the execution for Quantity units.
type DelayData struct {
	Heading

	Quantity int       `json:"quantity"`
	Unit     DelayUnit `json:"unit"`
}

// Duration converts the delay to a time.Duration. Days are 24 hours. A
// quantity too large for time.Duration yields 0, like an unknown unit.
func (d DelayData) Duration() time.Duration {
	unit := d.Unit.Duration()
	if unit == 0 || time.Duration(d.Quantity) > math.MaxInt64/unit {
		return 0
	}

	return time.Duration(d.Quantity) * unit
}

// Duration returns the length of one unit, or 0 for an unknown unit.
func (u DelayUnit) Duration() time.Duration {
	switch u {
	case DelayUnitMinutes:
		return time.Minute
	case DelayUnitHours:
		return time.Hour
	case DelayUnitDays:
		return 24 * time.Hour
	default:
		return 0
	}
}

// QuestionData asks the patient for one answer. Nomenclatura is the variable
// name the answer is stored under for conditions and formulas.
type QuestionData struct {
	Heading

	Nomenclatura string      `json:"nomenclatura,omitempty"`
	AnswerType   AnswerType  `json:"answer_type"`
	Options      []string    `json:"options,omitempty"`
	NumericType  NumericType `json:"numeric_type,omitempty"`
	Prefix       string      `json:"prefix,omitempty"`
	Suffix       string      `json:"suffix,omitempty"`
	Optional     bool        `json:"optional,omitempty"`
}

// CalculatorField is one numeric input of a calculator.
type CalculatorField struct {
	Nomenclatura string      `json:"nomenclatura"`
	Label        string      `json:"label,omitempty"`
	NumericType  NumericType `json:"numeric_type,omitempty"`
	Prefix       string      `json:"prefix,omitempty"`
	Suffix       string      `json:"suffix,omitempty"`
}

// CalculatorData collects numeric fields and derives a result from Formula.
type CalculatorData struct {
	Heading

	Nomenclatura string            `json:"nomenclatura,omitempty"`
	Fields       []CalculatorField `json:"fields"`
	Formula      string            `json:"formula"`
	ResultPrefix string            `json:"result_prefix,omitempty"`
	ResultSuffix string            `json:"result_suffix,omitempty"`
}

// ConditionRule guards the outgoing edge whose source handle equals Handle.
type ConditionRule struct {
	Handle     string `json:"handle"`
	Label      string `json:"label,omitempty"`
	Expression string `json:"expression,omitempty"`
	Default    bool   `json:"default,omitempty"`
}

// ConditionData routes the execution by evaluating rules over collected
// responses.
type ConditionData struct {
	Heading

	Rules []ConditionRule `json:"rules,omitempty"`
}

// Rule returns the rule attached to the given handle.
func (c ConditionData) Rule(handle string) (ConditionRule, bool) {
	for _, rule := range c.Rules {
		if rule.Handle == handle {
			return rule, true
		}
	}

	return ConditionRule{}, false
}

// StepHeading returns the title and description of the step.
func (h Heading) StepHeading() Heading { return h }

func (StartData) Kind() NodeKind      { return NodeKindStart }
func (EndData) Kind() NodeKind        { return NodeKindEnd }
func (FormStartData) Kind() NodeKind  { return NodeKindFormStart }
func (FormEndData) Kind() NodeKind    { return NodeKindFormEnd }
func (FormSelectData) Kind() NodeKind { return NodeKindFormSelect }
func (DelayData) Kind() NodeKind      { return NodeKindDelay }
func (QuestionData) Kind() NodeKind   { return NodeKindQuestion }
func (CalculatorData) Kind() NodeKind { return NodeKindCalculator }
func (ConditionData) Kind() NodeKind  { return NodeKindCondition }

func (StartData) isNodeData()      {}
func (EndData) isNodeData()        {}
func (FormStartData) isNodeData()  {}
func (FormEndData) isNodeData()    {}
func (FormSelectData) isNodeData() {}
func (DelayData) isNodeData()      {}
func (QuestionData) isNodeData()   {}
func (CalculatorData) isNodeData() {}
func (ConditionData) isNodeData()  {}

// DecodeNodeData validates raw against the kind schema and decodes it into the
// matching payload variant.
func DecodeNodeData(kind NodeKind, raw map[string]any) (NodeData, error) {
	var target NodeData

	switch kind {
	case NodeKindStart:
		target = &StartData{}
	case NodeKindEnd:
		target = &EndData{}
	case NodeKindFormStart:
		target = &FormStartData{}
	case NodeKindFormEnd:
		target = &FormEndData{}
	case NodeKindFormSelect:
		target = &FormSelectData{}
	case NodeKindDelay:
		target = &DelayData{}
	case NodeKindQuestion:
		target = &QuestionData{}
	case NodeKindCalculator:
		target = &CalculatorData{}
	case NodeKindCondition:
		target = &ConditionData{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeKind, kind)
	}

	if raw == nil {
		raw = map[string]any{}
	}

	err := ValidateNodeSchema(kind, raw)
	if err != nil {
		return nil, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build node data decoder: %w", err)
	}

	err = decoder.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}

	err = checkNodeData(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}

	return target, nil
}

// checkNodeData applies the rules a schema cannot express and fills defaults.
func checkNodeData(data NodeData) error {
	switch payload := data.(type) {
	case *DelayData:
		if payload.Duration() <= 0 {
			return errors.New("delay must be a positive quantity of minutes, hours or days that fits in a duration")
		}
	case *QuestionData:
		switch payload.AnswerType {
		case AnswerTypeSingleChoice, AnswerTypeMultipleChoice:
			if len(payload.Options) == 0 {
				return fmt.Errorf("%s question needs at least one option", payload.AnswerType)
			}
		case AnswerTypeNumber:
			if payload.NumericType == "" {
				payload.NumericType = NumericTypeInteger
			}
		}
	case *CalculatorData:
		seen := make(map[string]bool, len(payload.Fields))

		for i := range payload.Fields {
			field := &payload.Fields[i]

			name := strings.TrimSpace(field.Nomenclatura)
			if name == "" {
				return fmt.Errorf("calculator field %d has no nomenclatura", i)
			}

			if seen[name] {
				return fmt.Errorf("calculator field %q declared twice", name)
			}

			seen[name] = true

			if field.NumericType == "" {
				field.NumericType = NumericTypeDecimal
			}
		}
	case *ConditionData:
		handles := make(map[string]bool, len(payload.Rules))
		defaults := 0

		for _, rule := range payload.Rules {
			if handles[rule.Handle] {
				return fmt.Errorf("condition handle %q declared twice", rule.Handle)
			}

			handles[rule.Handle] = true

			if rule.Default {
				defaults++
			}
		}

		if defaults > 1 {
			return errors.New("condition has more than one default rule")
		}
	}

	return nil
}
