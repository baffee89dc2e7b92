package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/patientflow/pkg/events"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/otelhelper"
	"github.com/dukex/patientflow/pkg/persistence"
	"github.com/dukex/patientflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// Start begins an execution of an active flow for a patient. The flow graph is
// copied into the execution and the pointer moves past the start node.
func (e *Engine) Start(ctx context.Context, flowID, patientID string) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.FlowIDKey, flowID),
		attribute.String(otelhelper.PatientIDKey, patientID),
	)
	defer span.End()

	flow, err := e.flows.GetByID(ctx, flowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !flow.Active {
		err = fmt.Errorf("start flow %s: %w", flowID, ErrFlowInactive)
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = flow.Validate()
	if err != nil {
		err = fmt.Errorf("start flow %s: %w", flowID, err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	graph := flow.Graph().Snapshot()

	start, err := graph.StartNode()
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := e.clock.Now().UTC()

	execution := &models.FlowExecution{
		ID:        e.newID(),
		FlowID:    flow.ID,
		PatientID: patientID,
		Status:    models.ExecutionStatusInProgress,
		Responses: map[string]any{},
		History:   []models.StepRecord{},
		Graph:     graph,
		StartedAt: now,
		UpdatedAt: now,
	}

	landed, err := e.land(ctx, execution, start.ID, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = e.executions.Create(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.StatusKey, string(execution.Status)),
	)

	e.logger.InfoContext(ctx, "execution started",
		"execution_id", execution.ID,
		"flow_id", execution.FlowID,
		"patient_id", execution.PatientID,
		"current_node_id", execution.CurrentNodeID,
	)

	started := &events.ExecutionStarted{
		BaseEvent:     events.NewBaseEvent(e.newID(), events.ExecutionStartedEvent, now, execution),
		CurrentNodeID: execution.CurrentNodeID,
	}

	e.notify(ctx, append([]events.Event{started}, landed...)...)

	return execution, nil
}

// TickDelays moves every awaiting execution whose delay has elapsed past its
// delay node. Executions changed by a concurrent caller are skipped, so
// overlapping sweeps advance each execution once.
func (e *Engine) TickDelays(ctx context.Context) ([]*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.tick_delays")
	defer span.End()

	now := e.clock.Now().UTC()

	due, err := e.executions.Due(ctx, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	var (
		advanced []*models.FlowExecution
		errs     []error
	)

	for _, execution := range due {
		landed, err := e.passDelay(ctx, execution, now)
		if err != nil {
			if persistence.IsExecutionConflict(err) || persistence.IsExecutionNotFound(err) {
				e.logger.DebugContext(ctx, "execution moved by another caller, skipping",
					"execution_id", execution.ID,
				)

				continue
			}

			e.logger.ErrorContext(ctx, "failed to advance delayed execution",
				"execution_id", execution.ID,
				"error", err,
			)
			errs = append(errs, err)

			continue
		}

		advanced = append(advanced, execution)
		e.notify(ctx, landed...)
	}

	span.SetAttributes(attribute.Int("patientflow.sweep.advanced", len(advanced)))

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return advanced, err
}

func (e *Engine) passDelay(ctx context.Context, execution *models.FlowExecution, now time.Time) ([]events.Event, error) {
	guard := persistence.GuardOf(execution)

	if !execution.Due(now) {
		return nil, persistence.NewExecutionError("TickDelays", execution.ID, persistence.ErrExecutionConflict)
	}

	if execution.Graph == nil {
		return nil, &StepError{ExecutionID: execution.ID, Err: ErrInconsistentState}
	}

	node, ok := execution.Graph.Node(execution.CurrentNodeID)
	if !ok || node.Type != models.NodeKindDelay {
		return nil, &StepError{ExecutionID: execution.ID, NodeID: execution.CurrentNodeID, Err: ErrInconsistentState}
	}

	delayNodeID := node.ID

	completeCurrent(execution, nil, now)

	next, err := e.follow(ctx, execution, node)
	if err != nil {
		return nil, err
	}

	landed, err := e.land(ctx, execution, next, now)
	if err != nil {
		return nil, err
	}

	execution.Touch(now)

	err = e.executions.UpdateIf(ctx, execution, guard)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "delay elapsed",
		"execution_id", execution.ID,
		"delay_node_id", delayNodeID,
		"current_node_id", execution.CurrentNodeID,
		"status", execution.Status,
	)

	resumed := &events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(e.newID(), events.ExecutionResumedEvent, now, execution),
		NodeID:    execution.CurrentNodeID,
		Status:    execution.Status,
		Reason:    events.ResumeReasonDelayElapsed,
	}

	return append([]events.Event{resumed}, landed...), nil
}

// Pause suspends an in-progress or awaiting execution. Pausing a paused
// execution returns it unchanged.
func (e *Engine) Pause(ctx context.Context, executionID string) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.pause",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		err = &StepError{ExecutionID: execution.ID, Err: ErrExecutionCompleted}
		otelhelper.SetError(span, err)

		return nil, err
	case models.ExecutionStatusPaused:
		return execution, nil
	}

	guard := persistence.GuardOf(execution)
	now := e.clock.Now().UTC()

	execution.PausedStatus = execution.Status
	execution.Status = models.ExecutionStatusPaused
	execution.Touch(now)

	err = e.executions.UpdateIf(ctx, execution, guard)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.notify(ctx, &events.ExecutionPaused{
		BaseEvent:      events.NewBaseEvent(e.newID(), events.ExecutionPausedEvent, now, execution),
		NodeID:         execution.CurrentNodeID,
		PreviousStatus: execution.PausedStatus,
	})

	return execution, nil
}

// Resume returns a paused execution to the status it was paused from. A paused
// delay that already elapsed is picked up by the next sweep.
func (e *Engine) Resume(ctx context.Context, executionID string) (*models.FlowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return execution, nil
	}

	guard := persistence.GuardOf(execution)
	now := e.clock.Now().UTC()

	restored := execution.PausedStatus
	if restored == "" || restored == models.ExecutionStatusPaused || restored == models.ExecutionStatusCompleted {
		restored = models.ExecutionStatusInProgress
	}

	execution.Status = restored
	execution.PausedStatus = ""
	execution.Touch(now)

	err = e.executions.UpdateIf(ctx, execution, guard)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.notify(ctx, &events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(e.newID(), events.ExecutionResumedEvent, now, execution),
		NodeID:    execution.CurrentNodeID,
		Status:    execution.Status,
		Reason:    events.ResumeReasonManual,
	})

	return execution, nil
}

// land points execution at nodeID and keeps moving through pass-through nodes
// until it reaches a node that needs the patient, a delay or an end.
func (e *Engine) land(ctx context.Context, execution *models.FlowExecution, nodeID string, now time.Time) ([]events.Event, error) {
	graph := execution.Graph
	limit := len(graph.Nodes) + 1

	for hop := 0; hop <= limit; hop++ {
		node, ok := graph.Node(nodeID)
		if !ok {
			return nil, &StepError{ExecutionID: execution.ID, NodeID: nodeID, Err: ErrInconsistentState}
		}

		execution.CurrentNodeID = node.ID
		execution.CurrentStep = snapshotOf(node)

		payload, err := node.Payload()
		if err != nil {
			return nil, &StepError{ExecutionID: execution.ID, NodeID: node.ID, Err: err}
		}

		switch data := payload.(type) {
		case *models.EndData:
			execution.Status = models.ExecutionStatusCompleted
			execution.CompletedAt = &now
			execution.NextStepAvailableAt = nil
			execution.CurrentStep.Completed = true
			execution.CurrentStep.CompletedAt = &now

			return []events.Event{&events.ExecutionCompleted{
				BaseEvent: events.NewBaseEvent(e.newID(), events.ExecutionCompletedEvent, now, execution),
				NodeID:    node.ID,
				Message:   e.completionMessage(ctx, execution, data.Message),
				Duration:  now.Sub(execution.StartedAt),
			}}, nil
		case *models.DelayData:
			availableAt := now.Add(data.Duration())
			execution.Status = models.ExecutionStatusAwaiting
			execution.NextStepAvailableAt = &availableAt

			return []events.Event{&events.ExecutionAwaiting{
				BaseEvent:   events.NewBaseEvent(e.newID(), events.ExecutionAwaitingEvent, now, execution),
				NodeID:      node.ID,
				AvailableAt: availableAt,
			}}, nil
		}

		if node.Type.Actionable() {
			execution.Status = models.ExecutionStatusInProgress
			execution.NextStepAvailableAt = nil

			return nil, nil
		}

		if !node.Type.PassThrough() {
			return nil, &StepError{ExecutionID: execution.ID, NodeID: node.ID, Err: models.ErrUnknownNodeKind}
		}

		nodeID, err = e.follow(ctx, execution, node)
		if err != nil {
			return nil, err
		}
	}

	return nil, &StepError{ExecutionID: execution.ID, NodeID: nodeID, Err: ErrNoForwardProgress}
}

// follow picks the node reached from node. Conditions choose a branch; every
// other kind takes its first outgoing edge.
func (e *Engine) follow(ctx context.Context, execution *models.FlowExecution, node *models.FlowNode) (string, error) {
	edges := execution.Graph.Outgoing(node.ID)
	if len(edges) == 0 {
		return "", &StepError{
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			Err:         fmt.Errorf("%w: node has no outgoing edge", ErrInconsistentState),
		}
	}

	if node.Type != models.NodeKindCondition {
		return edges[0].Target, nil
	}

	payload, err := node.Payload()
	if err != nil {
		return "", &StepError{ExecutionID: execution.ID, NodeID: node.ID, Err: err}
	}

	condition, ok := payload.(*models.ConditionData)
	if !ok {
		return "", &StepError{ExecutionID: execution.ID, NodeID: node.ID, Err: ErrInconsistentState}
	}

	edge := e.branch(ctx, execution, node.ID, condition, edges)

	e.logger.DebugContext(ctx, "condition branch selected",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"edge", edge.String(),
	)

	return edge.Target, nil
}

// branch returns the first edge whose rule holds, else the edge of the default
// rule, else the first edge. Failing predicates count as false.
func (e *Engine) branch(ctx context.Context, execution *models.FlowExecution, nodeID string, condition *models.ConditionData, edges []*models.FlowEdge) *models.FlowEdge {
	for _, edge := range edges {
		rule, ok := condition.Rule(edge.SourceHandle)
		if !ok || strings.TrimSpace(rule.Expression) == "" {
			continue
		}

		matched, err := e.evaluator.EvaluateBool(rule.Expression, execution.Responses)
		if err != nil {
			e.logger.WarnContext(ctx, "condition predicate failed",
				"execution_id", execution.ID,
				"node_id", nodeID,
				"handle", rule.Handle,
				"error", err,
			)

			continue
		}

		if matched {
			return edge
		}
	}

	for _, edge := range edges {
		if rule, ok := condition.Rule(edge.SourceHandle); ok && rule.Default {
			return edge
		}
	}

	return edges[0]
}

// completeCurrent marks the current step answered and appends it to history.
func completeCurrent(execution *models.FlowExecution, response any, now time.Time) {
	if execution.CurrentStep == nil || execution.CurrentStep.NodeID != execution.CurrentNodeID {
		if node, ok := execution.Graph.Node(execution.CurrentNodeID); ok {
			execution.CurrentStep = snapshotOf(node)
		} else {
			execution.CurrentStep = &models.StepSnapshot{NodeID: execution.CurrentNodeID}
		}
	}

	execution.CurrentStep.Completed = true
	execution.CurrentStep.Response = response
	execution.CurrentStep.CompletedAt = &now

	execution.History = append(execution.History, models.StepRecord{
		NodeID:      execution.CurrentNodeID,
		Kind:        execution.CurrentStep.Kind,
		Response:    response,
		CompletedAt: now,
	})
}

// completionMessage fills the end message with the answers of the execution.
// A message that fails to render is sent as written.
func (e *Engine) completionMessage(ctx context.Context, execution *models.FlowExecution, message string) string {
	rendered, err := template.Render(message, execution.Responses)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to render completion message",
			"execution_id", execution.ID,
			"error", err,
		)

		return message
	}

	return rendered
}
