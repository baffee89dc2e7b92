package cmd

import (
	"strings"

	"github.com/dukex/patientflow/pkg/draft"
	"github.com/dukex/patientflow/pkg/draft/file"
	"github.com/dukex/patientflow/pkg/draft/memory"
	"github.com/dukex/patientflow/pkg/draft/redis"
)

// NewDraftStore selects where builder drafts are kept: redis:// URLs use
// Redis scoped to instanceID, "memory" keeps them in process and anything
// else is a directory.
func NewDraftStore(storeURL, instanceID string) (draft.Store, error) {
	switch {
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return redis.NewStoreFromURL(storeURL, instanceID)
	case storeURL == "memory":
		return memory.NewStore(), nil
	default:
		return file.NewStore(storeURL), nil
	}
}
