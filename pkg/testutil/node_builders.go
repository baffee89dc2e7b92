// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a FlowNode with default values that can be overridden.
func CreateTestNode(kind models.NodeKind, overrides ...func(*models.FlowNode)) *models.FlowNode {
	node := &models.FlowNode{
		ID:       uuid.NewString(),
		Type:     kind,
		Position: models.Position{X: 100, Y: 200},
		Data:     map[string]any{"title": string(kind)},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.ID = id
	}
}

// WithData merges data into the node payload.
func WithData(data map[string]any) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		if n.Data == nil {
			n.Data = map[string]any{}
		}

		for k, v := range data {
			n.Data[k] = v
		}
	}
}

// WithPosition sets the node canvas position.
func WithPosition(x, y float64) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.Position = models.Position{X: x, Y: y}
	}
}

// StartNode creates a start node with the given id.
func StartNode(id string) *models.FlowNode {
	return CreateTestNode(models.NodeKindStart, WithID(id))
}

// EndNode creates an end node with the given id.
func EndNode(id string) *models.FlowNode {
	return CreateTestNode(models.NodeKindEnd, WithID(id), WithData(map[string]any{"message": "Obrigado!"}))
}

// QuestionNode creates a question node storing its answer under nomenclatura.
func QuestionNode(id, nomenclatura string, answerType models.AnswerType, options ...string) *models.FlowNode {
	data := map[string]any{
		"title":        "Pergunta " + id,
		"nomenclatura": nomenclatura,
		"answer_type":  string(answerType),
	}

	if len(options) > 0 {
		values := make([]any, len(options))
		for i, option := range options {
			values[i] = option
		}

		data["options"] = values
	}

	return CreateTestNode(models.NodeKindQuestion, WithID(id), WithData(data))
}

// DelayNode creates a delay node of quantity units.
func DelayNode(id string, quantity int, unit models.DelayUnit) *models.FlowNode {
	return CreateTestNode(models.NodeKindDelay, WithID(id), WithData(map[string]any{
		"quantity": quantity,
		"unit":     string(unit),
	}))
}

// ConditionNode creates a condition node from rules.
func ConditionNode(id string, rules ...models.ConditionRule) *models.FlowNode {
	values := make([]any, len(rules))
	for i, rule := range rules {
		values[i] = map[string]any{
			"handle":     rule.Handle,
			"label":      rule.Label,
			"expression": rule.Expression,
			"default":    rule.Default,
		}
	}

	return CreateTestNode(models.NodeKindCondition, WithID(id), WithData(map[string]any{"rules": values}))
}

// CalculatorNode creates a calculator over the given field names.
func CalculatorNode(id, nomenclatura, formula string, fields ...string) *models.FlowNode {
	values := make([]any, len(fields))
	for i, field := range fields {
		values[i] = map[string]any{"nomenclatura": field, "label": field}
	}

	return CreateTestNode(models.NodeKindCalculator, WithID(id), WithData(map[string]any{
		"nomenclatura": nomenclatura,
		"formula":      formula,
		"fields":       values,
	}))
}

// FormSelectNode creates a form-select node for formID.
func FormSelectNode(id, formID string) *models.FlowNode {
	return CreateTestNode(models.NodeKindFormSelect, WithID(id), WithData(map[string]any{"form_id": formID}))
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(source, target string) *models.FlowEdge {
	return &models.FlowEdge{
		ID:     source + "-" + target,
		Source: source,
		Target: target,
	}
}

// CreateTestBranch creates an edge leaving source through handle.
func CreateTestBranch(source, handle, target string) *models.FlowEdge {
	edge := CreateTestEdge(source, target)
	edge.ID = source + "-" + handle + "-" + target
	edge.SourceHandle = handle

	return edge
}

// CreateTestFlow creates an active flow asking for "idade", waiting one day and
// finishing.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	flow := &models.Flow{
		ID:          uuid.NewString(),
		ClinicID:    "clinic-1",
		Name:        "Acompanhamento pós-consulta",
		Description: "Coleta a idade e retorna em um dia",
		Nodes: []*models.FlowNode{
			StartNode("start"),
			QuestionNode("q1", "idade", models.AnswerTypeNumber),
			DelayNode("d1", 1, models.DelayUnitDays),
			EndNode("end"),
		},
		Edges: []*models.FlowEdge{
			CreateTestEdge("start", "q1"),
			CreateTestEdge("q1", "d1"),
			CreateTestEdge("d1", "end"),
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithGraph replaces the nodes and edges of the flow.
func WithGraph(nodes []*models.FlowNode, edges []*models.FlowEdge) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = nodes
		f.Edges = edges
	}
}

// WithInactive marks the flow as inactive.
func WithInactive() func(*models.Flow) {
	return func(f *models.Flow) {
		f.Active = false
	}
}

// CreateBranchingFlow creates a flow that asks for "idade" and routes adults to
// node "x" and everyone else to node "y".
func CreateBranchingFlow() *models.Flow {
	return CreateTestFlow(WithGraph(
		[]*models.FlowNode{
			StartNode("start"),
			QuestionNode("q1", "idade", models.AnswerTypeNumber),
			ConditionNode("c1",
				models.ConditionRule{Handle: "adult", Expression: "idade > 18"},
				models.ConditionRule{Handle: "other", Default: true},
			),
			EndNode("x"),
			EndNode("y"),
		},
		[]*models.FlowEdge{
			CreateTestEdge("start", "q1"),
			CreateTestEdge("q1", "c1"),
			CreateTestBranch("c1", "adult", "x"),
			CreateTestBranch("c1", "other", "y"),
		},
	))
}
