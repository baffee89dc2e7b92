// Package draft autosaves the builder state of a flow that is being created
// and offers it back for recovery.
package draft

import (
	"context"
	"errors"
)

// Key is the single slot drafts are stored under.
const Key = "patientflow:flow-draft"

// ErrNoDraft indicates the store holds no draft.
var ErrNoDraft = errors.New("no draft stored")

// Store keeps one serialized draft.
type Store interface {
	// Load returns the stored blob or ErrNoDraft.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error

	// Delete removes the stored blob. Deleting an empty store is not an error.
	Delete(ctx context.Context) error
}
