package memory_test

import (
	"testing"

	"github.com/dukex/patientflow/pkg/draft/drafttest"
	"github.com/dukex/patientflow/pkg/draft/memory"
)

func TestStore_Contract(t *testing.T) {
	t.Parallel()

	drafttest.RunStoreContract(t, memory.NewStore())
}
