package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recordflow/recordflow/internal/engine"
	"github.com/recordflow/recordflow/internal/util"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// ExecutionStarter is the manager operation this controller drives. The
// dispatcher is the usual entry point; this endpoint exists for manual
// starts and backfills.
type ExecutionStarter interface {
	StartBySlug(slug string, trigger *models.TriggerPayload) (string, error)
}

type ExecutionsController struct {
	ExecutionRepo engine.ExecutionRepo
	EventRepo     engine.EventRepo
	Starter       ExecutionStarter
}

func NewExecutionsController(executionRepo engine.ExecutionRepo, eventRepo engine.EventRepo, starter ExecutionStarter) *ExecutionsController {
	return &ExecutionsController{ExecutionRepo: executionRepo, EventRepo: eventRepo, Starter: starter}
}

func (c *ExecutionsController) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.StartExecutionRequest](r)
	if err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.WorkflowSlug == "" {
		http.Error(w, "workflowSlug is required", http.StatusBadRequest)
		return
	}

	id, err := c.Starter.StartBySlug(req.WorkflowSlug, &req.Trigger)
	if err != nil {
		slog.Error("Failed to start execution", "workflow", req.WorkflowSlug, "error", err)
		http.Error(w, "failed to start execution", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.StartExecutionResponse{ID: id})
}

func (c *ExecutionsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	ex, err := c.ExecutionRepo.FindByID(id)
	if err != nil || ex == nil {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, mapExecutionToApi(ex))
}

func (c *ExecutionsController) handleGetExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	events, err := c.EventRepo.FindByExecutionID(id)
	if err != nil {
		slog.Error("Failed to load execution events", "execution_id", id, "error", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, events)
}

func (c *ExecutionsController) handleGetExecutionsByWorkflow(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Error(w, "slug is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := c.ExecutionRepo.FindByWorkflowSlug(slug, limit)
	if err != nil {
		slog.Error("Failed to search executions", "workflow", slug, "error", err)
		http.Error(w, "failed to search executions", http.StatusInternalServerError)
		return
	}
	out := make([]models.ExecutionApiResponse, 0, len(*rows))
	for i := range *rows {
		out = append(out, mapExecutionToApi(&(*rows)[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func mapExecutionToApi(ex *domain.Execution) models.ExecutionApiResponse {
	resp := models.ExecutionApiResponse{
		ID:           ex.ID,
		WorkflowSlug: ex.WorkflowSlug,
		Version:      ex.WorkflowVersion,
		Status:       ex.Status,
		CurrentStep:  ex.CurrentStep,
		StepCount:    ex.StepCount,
		CreatedAt:    ex.Created,
	}
	if ex.State.Valid && ex.State.String != "" {
		var state map[string]any
		if err := json.Unmarshal([]byte(ex.State.String), &state); err == nil {
			resp.Result = state
		}
	}
	if ex.Error.Valid {
		resp.Error = ex.Error.String
	}
	if ex.Started.Valid {
		t := ex.Started.Time
		resp.StartedAt = &t
	}
	if ex.Completed.Valid {
		t := ex.Completed.Time
		resp.CompletedAt = &t
	}
	return resp
}
