package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/patientflow/pkg/engine"
	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/persistence/file"
	"github.com/dukex/patientflow/pkg/services"
	"github.com/dukex/patientflow/pkg/testutil"
	"github.com/dukex/patientflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Flow) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	flowService := services.NewFlow(persistence)
	executionService := services.NewExecution(persistence, engine.New(persistence, nil))
	handlers := web.NewAPIHandlers(flowService, executionService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return app, flowService
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			encoded, err := json.Marshal(b)
			require.NoError(t, err)

			reader = bytes.NewBuffer(encoded)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func createFlowRequest(flow *models.Flow) web.CreateFlowRequest {
	return web.CreateFlowRequest{
		ClinicID:    flow.ClinicID,
		Name:        flow.Name,
		Description: flow.Description,
		Nodes:       flow.Nodes,
		Edges:       flow.Edges,
	}
}

func TestAPIHandlers_CreateFlow(t *testing.T) {
	t.Parallel()

	inactive := false

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name:           "successful creation",
			requestBody:    createFlowRequest(testutil.CreateTestFlow()),
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var flow models.Flow
				require.NoError(t, json.Unmarshal(body, &flow))
				assert.NotEmpty(t, flow.ID)
				assert.Equal(t, "clinic-1", flow.ClinicID)
				assert.True(t, flow.Active)
				assert.Len(t, flow.Nodes, 4)
			},
		},
		{
			name: "created inactive",
			requestBody: func() web.CreateFlowRequest {
				req := createFlowRequest(testutil.CreateTestFlow())
				req.Active = &inactive

				return req
			}(),
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var flow models.Flow
				require.NoError(t, json.Unmarshal(body, &flow))
				assert.False(t, flow.Active)
			},
		},
		{
			name:           "invalid json",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing clinic",
			requestBody: func() web.CreateFlowRequest {
				req := createFlowRequest(testutil.CreateTestFlow())
				req.ClinicID = ""

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "no nodes",
			requestBody: web.CreateFlowRequest{
				ClinicID: "clinic-1",
				Name:     "Vazio",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "two start nodes",
			requestBody: createFlowRequest(testutil.CreateTestFlow(testutil.WithGraph(
				[]*models.FlowNode{testutil.StartNode("a"), testutil.StartNode("b")},
				nil,
			))),
			expectedStatus: http.StatusBadRequest,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, string(body), "validation_error")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			status, body := doRequest(t, app, http.MethodPost, "/flows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_GetFlows(t *testing.T) {
	t.Parallel()

	app, flowService := setupTestApp(t)

	for _, clinic := range []string{"clinic-1", "clinic-1", "clinic-2"} {
		_, err := flowService.Create(t.Context(), testutil.CreateTestFlow(func(f *models.Flow) { f.ClinicID = clinic }))
		require.NoError(t, err)
	}

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
		expectedTotal  float64
	}{
		{name: "all", query: "", expectedStatus: http.StatusOK, expectedCount: 3, expectedTotal: 3},
		{name: "by clinic", query: "?clinic_id=clinic-1", expectedStatus: http.StatusOK, expectedCount: 2, expectedTotal: 2},
		{name: "paged", query: "?limit=1&offset=1", expectedStatus: http.StatusOK, expectedCount: 1, expectedTotal: 3},
		{name: "active only", query: "?active=true", expectedStatus: http.StatusOK, expectedCount: 3, expectedTotal: 3},
		{name: "bad limit", query: "?limit=abc", expectedStatus: http.StatusBadRequest},
		{name: "bad active", query: "?active=maybe", expectedStatus: http.StatusBadRequest},
		{name: "bad sort field", query: "?sort_by=clinic_id", expectedStatus: http.StatusBadRequest},
		{name: "bad sort order", query: "?sort_order=sideways", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := doRequest(t, app, http.MethodGet, "/flows"+tt.query, nil)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedStatus != http.StatusOK {
				return
			}

			var result map[string]any
			require.NoError(t, json.Unmarshal(body, &result))
			assert.Len(t, result["flows"], tt.expectedCount)
			assert.InDelta(t, tt.expectedTotal, result["total_count"], 0)
		})
	}
}

func TestAPIHandlers_FlowLifecycle(t *testing.T) {
	t.Parallel()

	app, flowService := setupTestApp(t)

	created, err := flowService.Create(t.Context(), testutil.CreateTestFlow())
	require.NoError(t, err)

	status, body := doRequest(t, app, http.MethodGet, "/flows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.Flow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.Name, fetched.Name)

	update := web.UpdateFlowRequest{
		Name:  "Retorno em uma semana",
		Nodes: created.Nodes,
		Edges: created.Edges,
	}

	status, body = doRequest(t, app, http.MethodPut, "/flows/"+created.ID, update)
	require.Equal(t, http.StatusOK, status, string(body))

	var updated models.Flow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Retorno em uma semana", updated.Name)
	assert.Equal(t, created.ClinicID, updated.ClinicID)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.Active)

	status, body = doRequest(t, app, http.MethodPost, "/flows/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.Active)

	status, _ = doRequest(t, app, http.MethodPost, "/flows/"+created.ID+"/executions", web.StartExecutionRequest{PatientID: "p1"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = doRequest(t, app, http.MethodPost, "/flows/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.True(t, updated.Active)

	status, _ = doRequest(t, app, http.MethodDelete, "/flows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodGet, "/flows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "flow_not_found")
}

func TestAPIHandlers_FlowNotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{name: "get", method: http.MethodGet, target: "/flows/missing"},
		{name: "delete", method: http.MethodDelete, target: "/flows/missing"},
		{name: "activate", method: http.MethodPost, target: "/flows/missing/activate"},
		{
			name:   "update",
			method: http.MethodPut,
			target: "/flows/missing",
			body:   web.UpdateFlowRequest{Name: "x", Nodes: []*models.FlowNode{testutil.StartNode("s")}},
		},
		{
			name:   "start execution",
			method: http.MethodPost,
			target: "/flows/missing/executions",
			body:   web.StartExecutionRequest{PatientID: "p1"},
		},
		{name: "list executions", method: http.MethodGet, target: "/flows/missing/executions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := doRequest(t, app, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusNotFound, status, string(body))
		})
	}
}

func TestAPIHandlers_ExecutionLifecycle(t *testing.T) {
	t.Parallel()

	app, flowService := setupTestApp(t)

	flow, err := flowService.Create(t.Context(), testutil.CreateBranchingFlow())
	require.NoError(t, err)

	status, _ := doRequest(t, app, http.MethodPost, "/flows/"+flow.ID+"/executions", web.StartExecutionRequest{})
	require.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodPost, "/flows/"+flow.ID+"/executions", web.StartExecutionRequest{PatientID: "patient-1"})
	require.Equal(t, http.StatusCreated, status, string(body))

	var execution models.FlowExecution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, "q1", execution.CurrentNodeID)
	assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)

	status, body = doRequest(t, app, http.MethodGet, "/executions/"+execution.ID+"/step", nil)
	require.Equal(t, http.StatusOK, status)

	var step map[string]any
	require.NoError(t, json.Unmarshal(body, &step))
	assert.Equal(t, "q1", step["node_id"])
	assert.Equal(t, "question", step["kind"])

	status, _ = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/responses", web.SubmitResponseRequest{NodeID: "q1", Value: "vinte"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/responses", web.SubmitResponseRequest{NodeID: "q1", Value: 30})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/responses", web.SubmitResponseRequest{NodeID: "q1", Value: 30})
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "x", execution.CurrentNodeID)

	status, _ = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/responses", web.SubmitResponseRequest{NodeID: "q1", Value: 30})
	assert.Equal(t, http.StatusConflict, status)

	status, body = doRequest(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"idade":30`)

	status, body = doRequest(t, app, http.MethodGet, "/patients/patient-1/executions", nil)
	require.Equal(t, http.StatusOK, status)

	var listing struct {
		Executions []web.ExecutionSummary `json:"executions"`
	}

	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Executions, 1)
	assert.Equal(t, execution.ID, listing.Executions[0].ID)

	status, body = doRequest(t, app, http.MethodGet, "/flows/"+flow.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Len(t, listing.Executions, 1)
}

func TestAPIHandlers_SubmitResponseValidation(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, _ := doRequest(t, app, http.MethodPost, "/executions/missing/responses", "{bad")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/executions/missing/responses", web.SubmitResponseRequest{Value: 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodPost, "/executions/missing/responses", web.SubmitResponseRequest{NodeID: "q1", Value: 1})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "execution_not_found")
}

func TestAPIHandlers_SweepExecutions(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doRequest(t, app, http.MethodPost, "/executions/sweep", nil)
	require.Equal(t, http.StatusOK, status)

	var result web.SweepResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 0, result.Advanced)
	assert.Empty(t, result.Executions)
	assert.False(t, result.SweptAt.IsZero())
}

func TestAPIHandlers_SweepExecutionsPartialFailure(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	executionService := services.NewExecution(store, engine.New(store, nil))
	handlers := web.NewAPIHandlers(services.NewFlow(store), executionService, validator.New())

	app := fiber.New()
	handlers.Register(app)

	flow := testutil.CreateTestFlow()
	due := time.Now().Add(-time.Minute)

	healthy := &models.FlowExecution{
		ID:                  uuid.NewString(),
		FlowID:              flow.ID,
		PatientID:           "patient-1",
		Status:              models.ExecutionStatusAwaiting,
		CurrentNodeID:       "d1",
		Responses:           map[string]any{},
		Graph:               flow.Graph().Snapshot(),
		StartedAt:           due.Add(-24 * time.Hour),
		NextStepAvailableAt: &due,
	}

	broken := healthy.Clone()
	broken.ID = uuid.NewString()
	broken.CurrentNodeID = "q1"

	for _, execution := range []*models.FlowExecution{healthy, broken} {
		require.NoError(t, store.ExecutionRepository().Create(t.Context(), execution))
	}

	status, body := doRequest(t, app, http.MethodPost, "/executions/sweep", nil)
	require.Equal(t, http.StatusInternalServerError, status)

	var result web.SweepResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Advanced)
	assert.Equal(t, []string{healthy.ID}, result.Executions)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], broken.ID)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	status, body := doRequest(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "healthy", result["status"])
}
