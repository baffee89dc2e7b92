package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/patientflow/pkg/events"
	"github.com/dukex/patientflow/pkg/expression"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/otelhelper"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
)

// DateLayout is the accepted format of date answers.
const DateLayout = "2006-01-02"

// SubmitResponse records the answer to the current step and advances the
// execution. A rejected answer leaves the stored execution untouched.
func (e *Engine) SubmitResponse(ctx context.Context, executionID, nodeID string, value any) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.submit_response",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	node, payload, err := e.answerable(execution, nodeID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	response, vars, err := e.accept(node, payload, value, execution.Responses)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	guard := persistence.GuardOf(execution)
	now := e.clock.Now().UTC()

	if execution.Responses == nil {
		execution.Responses = map[string]any{}
	}

	maps.Copy(execution.Responses, vars)
	completeCurrent(execution, response, now)

	next, err := e.follow(ctx, execution, node)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	landed, err := e.land(ctx, execution, next, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	execution.Touch(now)

	err = e.executions.UpdateIf(ctx, execution, guard)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(execution.Status)))

	e.logger.InfoContext(ctx, "step completed",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"kind", node.Type,
		"current_node_id", execution.CurrentNodeID,
		"status", execution.Status,
	)

	completed := &events.ExecutionStepCompleted{
		BaseEvent: events.NewBaseEvent(e.newID(), events.ExecutionStepCompletedEvent, now, execution),
		NodeID:    node.ID,
		Kind:      node.Type,
		Response:  response,
	}

	e.notify(ctx, append([]events.Event{completed}, landed...)...)

	return execution, nil
}

// answerable checks that execution waits for an answer on nodeID.
func (e *Engine) answerable(execution *models.FlowExecution, nodeID string) (*models.FlowNode, models.NodeData, error) {
	switch execution.Status {
	case models.ExecutionStatusCompleted:
		return nil, nil, &StepError{ExecutionID: execution.ID, NodeID: nodeID, Err: ErrExecutionCompleted}
	case models.ExecutionStatusInProgress:
	default:
		return nil, nil, &StepError{
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			Err:         fmt.Errorf("%w: status is %s", ErrNotAcceptingResponses, execution.Status),
		}
	}

	if nodeID != execution.CurrentNodeID {
		return nil, nil, &StepError{
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			Err:         fmt.Errorf("%w: execution is at node %s", ErrInconsistentState, execution.CurrentNodeID),
		}
	}

	if execution.Graph == nil {
		return nil, nil, &StepError{ExecutionID: execution.ID, NodeID: nodeID, Err: ErrInconsistentState}
	}

	node, ok := execution.Graph.Node(nodeID)
	if !ok || !node.Type.Actionable() {
		return nil, nil, &StepError{
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			Err:         fmt.Errorf("%w: node does not take answers", ErrInconsistentState),
		}
	}

	payload, err := node.Payload()
	if err != nil {
		return nil, nil, &StepError{ExecutionID: execution.ID, NodeID: nodeID, Err: err}
	}

	return node, payload, nil
}

// accept validates value for the node and returns the normalized response
// together with the variables it contributes to the execution responses.
func (e *Engine) accept(node *models.FlowNode, payload models.NodeData, value any, responses map[string]any) (any, map[string]any, error) {
	switch data := payload.(type) {
	case *models.QuestionData:
		answer, err := coerceAnswer(node.ID, data, value)
		if err != nil {
			return nil, nil, err
		}

		if answer == nil {
			return nil, nil, nil
		}

		return answer, map[string]any{variableName(data.Nomenclatura, node.ID): answer}, nil
	case *models.CalculatorData:
		return e.calculate(node.ID, data, value, responses)
	case *models.FormSelectData:
		form, ok := value.(map[string]any)
		if !ok || len(form) == 0 {
			return nil, nil, invalid(node.ID, "form answers must be a non-empty object")
		}

		return form, map[string]any{node.ID: form}, nil
	default:
		return nil, nil, invalid(node.ID, "%s steps do not take answers", node.Type)
	}
}

func coerceAnswer(nodeID string, question *models.QuestionData, value any) (any, error) {
	if isBlank(value) {
		if question.Optional {
			return nil, nil
		}

		return nil, invalid(nodeID, "an answer is required")
	}

	switch question.AnswerType {
	case models.AnswerTypeNumber:
		return CoerceNumber(nodeID, question.NumericType, value)
	case models.AnswerTypeSingleChoice:
		choice, err := cast.ToStringE(value)
		if err != nil || !slices.Contains(question.Options, choice) {
			return nil, invalid(nodeID, "%v is not one of the options", value)
		}

		return choice, nil
	case models.AnswerTypeMultipleChoice:
		return coerceChoices(nodeID, question.Options, value)
	case models.AnswerTypeYesNo:
		return coerceYesNo(nodeID, value)
	case models.AnswerTypeDate:
		text, err := cast.ToStringE(value)
		if err != nil {
			return nil, invalid(nodeID, "date must be a string")
		}

		_, err = time.Parse(DateLayout, strings.TrimSpace(text))
		if err != nil {
			return nil, invalid(nodeID, "date must use the %s format", DateLayout)
		}

		return strings.TrimSpace(text), nil
	case models.AnswerTypeText:
		if _, ok := value.(map[string]any); ok {
			return nil, invalid(nodeID, "text answer must be a string")
		}

		text, err := cast.ToStringE(value)
		if err != nil {
			return nil, invalid(nodeID, "text answer must be a string")
		}

		return strings.TrimSpace(text), nil
	default:
		return nil, invalid(nodeID, "unsupported answer type %q", question.AnswerType)
	}
}

// CoerceNumber converts a submitted number or numeric string. Integer steps
// reject fractional values; decimal steps accept a comma as separator.
func CoerceNumber(nodeID string, numericType models.NumericType, value any) (float64, error) {
	var number float64

	switch v := value.(type) {
	case bool:
		return 0, invalid(nodeID, "%v is not a number", value)
	case string:
		text := strings.TrimSpace(v)

		if numericType == models.NumericTypeInteger {
			parsed, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return 0, invalid(nodeID, "%q is not an integer", v)
			}

			return float64(parsed), nil
		}

		parsed, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
		if err != nil {
			return 0, invalid(nodeID, "%q is not a number", v)
		}

		number = parsed
	default:
		parsed, err := cast.ToFloat64E(value)
		if err != nil {
			return 0, invalid(nodeID, "%v is not a number", value)
		}

		number = parsed
	}

	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, invalid(nodeID, "number must be finite")
	}

	if numericType == models.NumericTypeInteger && number != math.Trunc(number) {
		return 0, invalid(nodeID, "%v is not an integer", value)
	}

	return number, nil
}

func coerceChoices(nodeID string, options []string, value any) ([]string, error) {
	var items []any

	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		for _, item := range v {
			items = append(items, item)
		}
	default:
		return nil, invalid(nodeID, "multiple choice answer must be a list")
	}

	if len(items) == 0 {
		return nil, invalid(nodeID, "select at least one option")
	}

	choices := make([]string, 0, len(items))

	for _, item := range items {
		choice, err := cast.ToStringE(item)
		if err != nil || !slices.Contains(options, choice) {
			return nil, invalid(nodeID, "%v is not one of the options", item)
		}

		if slices.Contains(choices, choice) {
			return nil, invalid(nodeID, "%q selected twice", choice)
		}

		choices = append(choices, choice)
	}

	return choices, nil
}

func coerceYesNo(nodeID string, value any) (bool, error) {
	if answer, ok := value.(bool); ok {
		return answer, nil
	}

	text, ok := value.(string)
	if !ok {
		return false, invalid(nodeID, "%v is not a yes or no answer", value)
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "sim", "yes", "true", "s", "y":
		return true, nil
	case "não", "nao", "no", "false", "n":
		return false, nil
	default:
		return false, invalid(nodeID, "%q is not a yes or no answer", text)
	}
}

// calculate validates the calculator fields and evaluates its formula over
// them. Earlier responses stay visible to the formula.
func (e *Engine) calculate(nodeID string, calculator *models.CalculatorData, value any, responses map[string]any) (any, map[string]any, error) {
	submitted, ok := value.(map[string]any)
	if !ok {
		return nil, nil, invalid(nodeID, "calculator answer must be an object of field values")
	}

	fields := make(map[string]any, len(calculator.Fields))

	for _, field := range calculator.Fields {
		raw, present := submitted[field.Nomenclatura]
		if !present || isBlank(raw) {
			return nil, nil, invalid(nodeID, "field %s is required", field.Nomenclatura)
		}

		number, err := CoerceNumber(nodeID, field.NumericType, raw)
		if err != nil {
			return nil, nil, err
		}

		fields[field.Nomenclatura] = number
	}

	vars := maps.Clone(responses)
	if vars == nil {
		vars = map[string]any{}
	}

	maps.Copy(vars, fields)

	result, err := e.evaluator.EvaluateNumber(calculator.Formula, vars)
	if err != nil {
		if errors.Is(err, expression.ErrNotANumber) {
			return nil, nil, invalid(nodeID, "formula result is not a finite number")
		}

		return nil, nil, invalid(nodeID, "formula failed: %v", err)
	}

	response := maps.Clone(fields)
	response["result"] = result

	contributed := maps.Clone(fields)
	contributed[variableName(calculator.Nomenclatura, nodeID)] = result

	return response, contributed, nil
}

func variableName(nomenclatura, nodeID string) string {
	if name := strings.TrimSpace(nomenclatura); name != "" {
		return name
	}

	return nodeID
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}
