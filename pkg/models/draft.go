package models

import (
	"strings"
	"time"
)

// DraftTTL is how long an unsaved builder draft is offered for recovery.
const DraftTTL = 7 * 24 * time.Hour

// FlowDraft is the builder state autosaved while a new flow is being created.
type FlowDraft struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Nodes       []*FlowNode `json:"nodes"`
	Edges       []*FlowEdge `json:"edges"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Expired reports whether the draft is older than DraftTTL at now.
func (d *FlowDraft) Expired(now time.Time) bool {
	return now.Sub(d.Timestamp) > DraftTTL
}

// IsInitialState reports whether the draft equals the canvas of a fresh
// builder: a lone start node, no edges and no name.
func (d *FlowDraft) IsInitialState() bool {
	if strings.TrimSpace(d.Name) != "" || len(d.Edges) > 0 {
		return false
	}

	switch len(d.Nodes) {
	case 0:
		return true
	case 1:
		return d.Nodes[0] != nil && d.Nodes[0].Type == NodeKindStart
	default:
		return false
	}
}
