// Package web provides HTTP handlers and REST API endpoints for flows and
// their executions.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/dukex/patientflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	flowService      *services.Flow
	executionService *services.Execution
	validator        *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flow,
	executionService *services.Execution,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService:      flowService,
		executionService: executionService,
		validator:        validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Put("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/activate", h.ActivateFlow)
	f.Post("/:id/deactivate", h.DeactivateFlow)
	f.Post("/:id/executions", h.StartExecution)
	f.Get("/:id/executions", h.GetFlowExecutions)

	e := router.Group("/executions")
	e.Post("/sweep", h.SweepExecutions)
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/step", h.GetExecutionStep)
	e.Post("/:id/responses", h.SubmitResponse)
	e.Post("/:id/pause", h.PauseExecution)
	e.Post("/:id/resume", h.ResumeExecution)

	router.Get("/patients/:patientId/executions", h.GetPatientExecutions)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	req, err := h.parseListFlowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.flowService.ListFlows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":         result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListFlowsRequest parses query parameters for listing flows.
func (h *APIHandlers) parseListFlowsRequest(c fiber.Ctx) (*services.ListFlowsRequest, error) {
	req := &services.ListFlowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.ClinicID = c.Query("clinic_id")

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.Active = &active
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow := &models.Flow{
		ClinicID:    req.ClinicID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Active:      req.Active == nil || *req.Active,
	}

	created, err := h.flowService.Create(c.Context(), flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	flow := &models.Flow{
		ClinicID:    existing.ClinicID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Active:      existing.Active,
	}

	if req.ClinicID != "" {
		flow.ClinicID = req.ClinicID
	}

	if req.Active != nil {
		flow.Active = *req.Active
	}

	updated, err := h.flowService.Update(c.Context(), id, flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateFlow(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	flow, err := h.flowService.SetActive(c.Context(), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Start(c.Context(), c.Params("id"), req.PatientID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetFlowExecutions(c fiber.Ctx) error {
	executions, err := h.executionService.ListByFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": TransformExecutionSummaries(executions),
	})
}

func (h *APIHandlers) GetPatientExecutions(c fiber.Ctx) error {
	executions, err := h.executionService.ListByPatient(c.Context(), c.Params("patientId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": TransformExecutionSummaries(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionStep(c fiber.Ctx) error {
	step, err := h.executionService.CurrentStep(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) SubmitResponse(c fiber.Ctx) error {
	var req SubmitResponseRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.SubmitResponse(c.Context(), c.Params("id"), req.NodeID, req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// SweepExecutions runs one delay sweep, for deployments driven by an external
// scheduler. When only some executions fail the response is a 500 that still
// lists the executions that were advanced.
func (h *APIHandlers) SweepExecutions(c fiber.Ctx) error {
	advanced, err := h.executionService.Sweep(c.Context())
	if err != nil && len(advanced) == 0 {
		return handleServiceError(c, err)
	}

	ids := make([]string, 0, len(advanced))
	for _, execution := range advanced {
		ids = append(ids, execution.ID)
	}

	response := SweepResponse{
		Advanced:   len(advanced),
		Executions: ids,
		SweptAt:    time.Now().UTC(),
	}

	if err == nil {
		return c.JSON(response)
	}

	response.Errors = errorMessages(err)

	return c.Status(fiber.StatusInternalServerError).JSON(response)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Patientflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Patientflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
