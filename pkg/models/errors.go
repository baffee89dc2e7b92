package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStartNode indicates a flow without a start node.
	ErrMissingStartNode = errors.New("flow must have exactly one start node")

	// ErrMultipleStartNodes indicates a flow with more than one start node.
	ErrMultipleStartNodes = errors.New("flow has more than one start node")

	// ErrDuplicateNodeID indicates two nodes sharing an identifier.
	ErrDuplicateNodeID = errors.New("duplicate node id")

	// ErrEmptyNodeID indicates a node without identifier.
	ErrEmptyNodeID = errors.New("node id cannot be empty")

	// ErrDanglingEdge indicates an edge whose endpoint is not a node of the flow.
	ErrDanglingEdge = errors.New("edge references a node outside the flow")

	// ErrUnknownNodeKind indicates a node type outside the supported set.
	ErrUnknownNodeKind = errors.New("unknown node kind")

	// ErrInvalidNodeData indicates a node payload that does not match its kind.
	ErrInvalidNodeData = errors.New("invalid node data")
)

// NodeDataError wraps payload errors with the offending node.
type NodeDataError struct {
	NodeID string
	Kind   NodeKind
	Err    error
}

func (e *NodeDataError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeDataError) Unwrap() error {
	return e.Err
}

// GraphError wraps structural errors with the node or edge they refer to.
type GraphError struct {
	NodeID string
	EdgeID string
	Err    error
}

func (e *GraphError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("edge %s: %v", e.EdgeID, e.Err)
	case e.NodeID != "":
		return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// IsGraphError reports whether err describes an invalid flow graph.
func IsGraphError(err error) bool {
	return errors.Is(err, ErrMissingStartNode) ||
		errors.Is(err, ErrMultipleStartNodes) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrEmptyNodeID) ||
		errors.Is(err, ErrDanglingEdge) ||
		errors.Is(err, ErrUnknownNodeKind) ||
		errors.Is(err, ErrInvalidNodeData)
}
