package engine

import (
	"context"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// Step is the resolved view of the node an execution points at.
type Step struct {
	NodeID      string                 `json:"node_id"`
	Kind        models.NodeKind        `json:"kind"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Payload     models.NodeData        `json:"payload"`
	Completed   bool                   `json:"completed"`
	Response    any                    `json:"response,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	AvailableAt *time.Time             `json:"available_at,omitempty"`
	Status      models.ExecutionStatus `json:"status"`
	Progress    float64                `json:"progress"`
}

// ComputeCurrentStep resolves the current node of execution in graph. It does
// not touch storage.
func ComputeCurrentStep(execution *models.FlowExecution, graph *models.FlowGraph) (*Step, error) {
	if graph == nil {
		return nil, &StepError{ExecutionID: execution.ID, Err: ErrInconsistentState}
	}

	node, ok := graph.Node(execution.CurrentNodeID)
	if !ok {
		return nil, &StepError{ExecutionID: execution.ID, NodeID: execution.CurrentNodeID, Err: ErrInconsistentState}
	}

	payload, err := node.Payload()
	if err != nil {
		return nil, &StepError{ExecutionID: execution.ID, NodeID: node.ID, Err: err}
	}

	heading := payload.StepHeading()

	step := &Step{
		NodeID:      node.ID,
		Kind:        node.Type,
		Title:       heading.Title,
		Description: heading.Description,
		Payload:     payload,
		Status:      execution.Status,
		Progress:    Progress(execution, graph),
	}

	if snapshot := execution.CurrentStep; snapshot != nil && snapshot.NodeID == node.ID {
		step.Completed = snapshot.Completed
		step.Response = snapshot.Response
		step.CompletedAt = snapshot.CompletedAt
	}

	if node.Type == models.NodeKindDelay {
		step.AvailableAt = execution.NextStepAvailableAt
	}

	if node.Type == models.NodeKindEnd && execution.IsTerminal() {
		step.Completed = true
		step.CompletedAt = execution.CompletedAt
	}

	return step, nil
}

// Progress is the share of actionable nodes already answered, or 1 once the
// execution completed.
func Progress(execution *models.FlowExecution, graph *models.FlowGraph) float64 {
	if execution.IsTerminal() {
		return 1
	}

	if graph == nil {
		return 0
	}

	actionable := make(map[string]bool)

	for _, node := range graph.Nodes {
		if node.Type.Actionable() {
			actionable[node.ID] = true
		}
	}

	if len(actionable) == 0 {
		return 0
	}

	answered := make(map[string]bool)

	for _, record := range execution.History {
		if actionable[record.NodeID] {
			answered[record.NodeID] = true
		}
	}

	return float64(len(answered)) / float64(len(actionable))
}

// CurrentStep loads an execution and resolves its current step against the
// graph it was started with.
func (e *Engine) CurrentStep(ctx context.Context, executionID string) (*Step, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.current_step",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	step, err := ComputeCurrentStep(execution, execution.Graph)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.NodeIDKey, step.NodeID),
		attribute.String(otelhelper.NodeKindKey, string(step.Kind)),
	)

	return step, nil
}

// snapshotOf builds the pending step snapshot of node.
func snapshotOf(node *models.FlowNode) *models.StepSnapshot {
	snapshot := &models.StepSnapshot{NodeID: node.ID, Kind: node.Type}

	if payload, err := node.Payload(); err == nil {
		heading := payload.StepHeading()
		snapshot.Title = heading.Title
		snapshot.Description = heading.Description
	}

	return snapshot
}
