// Package expression evaluates condition predicates and calculator formulas
// written as JavaScript expressions over the responses of an execution.
package expression

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/robertkrimen/otto"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 100 * time.Millisecond

var (
	ErrEmptyExpression = errors.New("expression is empty")
	ErrTimeout         = errors.New("expression evaluation timed out")
	ErrNotANumber      = errors.New("expression result is not a finite number")
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// EvaluationError wraps a failed evaluation with its source expression.
type EvaluationError struct {
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Evaluator runs expressions in a fresh VM per call.
type Evaluator struct {
	timeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = timeout
	}
}

func New(opts ...Option) *Evaluator {
	evaluator := &Evaluator{timeout: DefaultTimeout}

	for _, opt := range opts {
		opt(evaluator)
	}

	return evaluator
}

// EvaluateBool evaluates a predicate. Non-boolean results follow JavaScript
// truthiness.
func (e *Evaluator) EvaluateBool(expression string, vars map[string]any) (bool, error) {
	value, err := e.run(expression, vars)
	if err != nil {
		return false, err
	}

	result, err := value.ToBoolean()
	if err != nil {
		return false, &EvaluationError{Expression: expression, Err: err}
	}

	return result, nil
}

// EvaluateNumber evaluates a formula that must produce a finite number.
func (e *Evaluator) EvaluateNumber(expression string, vars map[string]any) (float64, error) {
	value, err := e.run(expression, vars)
	if err != nil {
		return 0, err
	}

	if !value.IsNumber() {
		return 0, &EvaluationError{Expression: expression, Err: ErrNotANumber}
	}

	result, err := value.ToFloat()
	if err != nil {
		return 0, &EvaluationError{Expression: expression, Err: err}
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, &EvaluationError{Expression: expression, Err: ErrNotANumber}
	}

	return result, nil
}

type halt struct{}

func (e *Evaluator) run(expression string, vars map[string]any) (value otto.Value, err error) {
	if strings.TrimSpace(expression) == "" {
		return otto.UndefinedValue(), &EvaluationError{Expression: expression, Err: ErrEmptyExpression}
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	err = bind(vm, vars)
	if err != nil {
		return otto.UndefinedValue(), &EvaluationError{Expression: expression, Err: err}
	}

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt <- func() { panic(halt{}) }
	})
	defer timer.Stop()

	defer func() {
		if caught := recover(); caught != nil {
			if _, ok := caught.(halt); ok {
				value = otto.UndefinedValue()
				err = &EvaluationError{Expression: expression, Err: ErrTimeout}

				return
			}

			panic(caught)
		}
	}()

	value, err = vm.Run(expression)
	if err != nil {
		return otto.UndefinedValue(), &EvaluationError{Expression: expression, Err: err}
	}

	return value, nil
}

// bind exposes every variable through the responses object and, when its name
// is a valid identifier, as a global.
func bind(vm *otto.Otto, vars map[string]any) error {
	responses := make(map[string]any, len(vars))

	for name, raw := range vars {
		value := normalize(raw)
		responses[name] = value

		if !identifier.MatchString(name) {
			continue
		}

		err := vm.Set(name, value)
		if err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}

	return vm.Set("responses", responses)
}

// normalize converts decoded JSON values into types otto maps onto plain
// JavaScript values.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}

		return out
	default:
		return v
	}
}
