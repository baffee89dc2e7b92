// Package models defines the flow, node and execution models shared by the
// builder, the persistence layer and the execution engine.
package models

import (
	"fmt"
	"slices"
)

// NodeKind identifies the behaviour of a node in a flow graph.
type NodeKind string

const (
	NodeKindStart      NodeKind = "start"
	NodeKindEnd        NodeKind = "end"
	NodeKindFormStart  NodeKind = "form-start"
	NodeKindFormEnd    NodeKind = "form-end"
	NodeKindFormSelect NodeKind = "form-select"
	NodeKindDelay      NodeKind = "delay"
	NodeKindQuestion   NodeKind = "question"
	NodeKindCalculator NodeKind = "calculator"
	NodeKindCondition  NodeKind = "condition"
)

// NodeKinds lists every kind the builder can place on the canvas.
var NodeKinds = []NodeKind{
	NodeKindStart,
	NodeKindEnd,
	NodeKindFormStart,
	NodeKindFormEnd,
	NodeKindFormSelect,
	NodeKindDelay,
	NodeKindQuestion,
	NodeKindCalculator,
	NodeKindCondition,
}

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	return slices.Contains(NodeKinds, k)
}

// Actionable reports whether a patient must answer the node before the
// execution can move on.
func (k NodeKind) Actionable() bool {
	switch k {
	case NodeKindQuestion, NodeKindCalculator, NodeKindFormSelect:
		return true
	default:
		return false
	}
}

// PassThrough reports whether the engine crosses the node without stopping.
func (k NodeKind) PassThrough() bool {
	switch k {
	case NodeKindStart, NodeKindFormStart, NodeKindFormEnd, NodeKindCondition:
		return true
	default:
		return false
	}
}

// Position is the canvas location of a node. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowNode is one step of a flow graph. Data holds the kind specific payload
// exactly as authored; use Payload to get its typed form.
type FlowNode struct {
	ID       string         `json:"id"       validate:"required"`
	Type     NodeKind       `json:"type"     validate:"required"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// Payload decodes the node data into the variant matching the node kind.
func (n *FlowNode) Payload() (NodeData, error) {
	data, err := DecodeNodeData(n.Type, n.Data)
	if err != nil {
		return nil, &NodeDataError{NodeID: n.ID, Kind: n.Type, Err: err}
	}

	return data, nil
}

// FlowEdge is a directed connection between two nodes. Handles identify the
// branch of multi-output nodes such as conditions.
type FlowEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Label        string `json:"label,omitempty"`
}

func (e *FlowEdge) String() string {
	if e.SourceHandle != "" {
		return fmt.Sprintf("%s[%s]->%s", e.Source, e.SourceHandle, e.Target)
	}

	return e.Source + "->" + e.Target
}
