package models

import (
	"errors"
	"strings"
	"time"

	"github.com/mohae/deepcopy"
)

// Flow is a clinic authored graph of steps a patient goes through.
type Flow struct {
	ID          string      `json:"id"`
	ClinicID    string      `json:"clinic_id"             validate:"required"`
	Name        string      `json:"name"                  validate:"required,min=1"`
	Description string      `json:"description,omitempty"`
	Nodes       []*FlowNode `json:"nodes"`
	Edges       []*FlowEdge `json:"edges"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewFlow builds an active flow and checks its graph invariants.
func NewFlow(clinicID, name, description string, nodes []*FlowNode, edges []*FlowEdge) (*Flow, error) {
	flow := &Flow{
		ClinicID:    clinicID,
		Name:        strings.TrimSpace(name),
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		Active:      true,
	}

	err := flow.Validate()
	if err != nil {
		return nil, err
	}

	return flow, nil
}

// Validate checks the graph invariants of the flow.
func (f *Flow) Validate() error {
	return f.Graph().Validate()
}

// Graph returns the nodes and edges of the flow. The slices are shared.
func (f *Flow) Graph() *FlowGraph {
	return &FlowGraph{Nodes: f.Nodes, Edges: f.Edges}
}

// FlowGraph is the executable part of a flow.
type FlowGraph struct {
	Nodes []*FlowNode `json:"nodes"`
	Edges []*FlowEdge `json:"edges"`
}

// Snapshot returns a deep copy of the graph, detached from later edits.
func (g *FlowGraph) Snapshot() *FlowGraph {
	if g == nil {
		return nil
	}

	return deepcopy.Copy(g).(*FlowGraph)
}

// Node returns the node with the given id.
func (g *FlowGraph) Node(id string) (*FlowNode, bool) {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// StartNode returns the single start node.
func (g *FlowGraph) StartNode() (*FlowNode, error) {
	var start *FlowNode

	for _, node := range g.Nodes {
		if node.Type != NodeKindStart {
			continue
		}

		if start != nil {
			return nil, &GraphError{NodeID: node.ID, Err: ErrMultipleStartNodes}
		}

		start = node
	}

	if start == nil {
		return nil, ErrMissingStartNode
	}

	return start, nil
}

// Outgoing returns the edges leaving nodeID in authored order.
func (g *FlowGraph) Outgoing(nodeID string) []*FlowEdge {
	var edges []*FlowEdge

	for _, edge := range g.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks that the graph has exactly one start node, unique node ids,
// decodable payloads and edges that only reference its own nodes.
func (g *FlowGraph) Validate() error {
	ids := make(map[string]bool, len(g.Nodes))

	var errs []error

	for _, node := range g.Nodes {
		if node == nil || strings.TrimSpace(node.ID) == "" {
			errs = append(errs, ErrEmptyNodeID)

			continue
		}

		if ids[node.ID] {
			errs = append(errs, &GraphError{NodeID: node.ID, Err: ErrDuplicateNodeID})
		}

		ids[node.ID] = true

		if _, err := node.Payload(); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := g.StartNode(); err != nil {
		errs = append(errs, err)
	}

	for _, edge := range g.Edges {
		if edge == nil {
			continue
		}

		if !ids[edge.Source] || !ids[edge.Target] {
			errs = append(errs, &GraphError{EdgeID: edge.String(), Err: ErrDanglingEdge})
		}
	}

	return errors.Join(errs...)
}
