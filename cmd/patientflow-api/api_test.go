package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/patientflow/pkg/draft"
	"github.com/dukex/patientflow/pkg/draft/memory"
	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence/file"
	"github.com/dukex/patientflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	return NewAPI(slog.Default(), persistence, engine.New(persistence, nil)).App()
}

func get(t *testing.T, app *fiber.App, target string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Patientflow API", body)
}

func TestAPI_Probes(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	for _, target := range []string{"/livez", "/readyz", "/health"} {
		status, _ := get(t, app, target)
		assert.Equal(t, http.StatusOK, status, target)
	}
}

func TestAPI_RoutesMounted(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := get(t, app, "/flows")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"flows"`)

	status, _ = get(t, app, "/executions/unknown")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestShowDraft(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	manager := draft.NewManager(store, draft.ModeCreate)

	var out bytes.Buffer

	require.NoError(t, showDraft(t.Context(), manager, &out))
	assert.Equal(t, "no draft\n", out.String())

	manager.ScheduleAutoSave(t.Context(), "Triagem", "", []*models.FlowNode{
		testutil.StartNode("start"),
		testutil.EndNode("end"),
	}, []*models.FlowEdge{testutil.CreateTestEdge("start", "end")})
	require.NoError(t, manager.Flush(t.Context()))

	out.Reset()
	require.NoError(t, showDraft(t.Context(), manager, &out))
	assert.Contains(t, out.String(), `"Triagem"`)
}
