// Package drafttest checks draft.Store implementations against the behaviour
// the manager relies on.
package drafttest

import (
	"testing"

	"github.com/dukex/patientflow/pkg/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract exercises an empty store.
func RunStoreContract(t *testing.T, store draft.Store) {
	t.Helper()

	ctx := t.Context()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, draft.ErrNoDraft, "empty store must report ErrNoDraft")

	require.NoError(t, store.Delete(ctx), "deleting an empty store must succeed")

	require.NoError(t, store.Save(ctx, []byte(`{"name":"first"}`)))

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"first"}`, string(data))

	require.NoError(t, store.Save(ctx, []byte(`{"name":"second"}`)))

	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"second"}`, string(data), "save must replace the previous draft")

	require.NoError(t, store.Delete(ctx))

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, draft.ErrNoDraft)
}
