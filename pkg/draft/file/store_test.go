package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/patientflow/pkg/draft/drafttest"
	"github.com/dukex/patientflow/pkg/draft/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	t.Parallel()

	drafttest.RunStoreContract(t, file.NewStore(t.TempDir()))
}

func TestStore_Path(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := file.NewStore("file://" + filepath.Join(dir, "drafts"))

	assert.Equal(t, filepath.Join(dir, "drafts", "patientflow-flow-draft.json"), store.Path())

	require.NoError(t, store.Save(t.Context(), []byte(`{}`)))

	_, err := os.Stat(store.Path())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}
