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

// TasksController is the surface approvers work through: list what is
// waiting on them, then complete or cancel. A task leaves PENDING exactly
// once; the losing caller gets a conflict.
type TasksController struct {
	TaskRepo engine.TaskRepo
}

func NewTasksController(taskRepo engine.TaskRepo) *TasksController {
	return &TasksController{TaskRepo: taskRepo}
}

func (c *TasksController) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	task, err := c.TaskRepo.FindByID(id)
	if err != nil || task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, mapTaskToApi(task))
}

func (c *TasksController) handleGetTasksByAssignee(w http.ResponseWriter, r *http.Request) {
	assignee := r.PathValue("assignee")
	if assignee == "" {
		http.Error(w, "assignee is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := c.TaskRepo.FindPendingByAssignee(assignee, limit)
	if err != nil {
		slog.Error("Failed to search tasks", "assignee", assignee, "error", err)
		http.Error(w, "failed to search tasks", http.StatusInternalServerError)
		return
	}
	out := make([]models.UserTaskApiResponse, 0, len(*rows))
	for i := range *rows {
		out = append(out, mapTaskToApi(&(*rows)[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *TasksController) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	req, err := util.DecodeJSONBody[models.CompleteTaskRequest](r)
	if err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	resultJSON := "{}"
	if req.Result != nil {
		b, err := json.Marshal(req.Result)
		if err != nil {
			http.Error(w, "result is not serializable", http.StatusBadRequest)
			return
		}
		resultJSON = string(b)
	}

	ok, err := c.TaskRepo.Complete(id, resultJSON)
	if err != nil {
		slog.Error("Failed to complete task", "task_id", id, "error", err)
		http.Error(w, "failed to complete task", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "task is no longer pending", http.StatusConflict)
		return
	}
	slog.Info("User task completed", "task_id", id)
	util.WriteJSONResponse(w, http.StatusOK, models.CompleteTaskResponse{OK: true})
}

func (c *TasksController) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	ok, err := c.TaskRepo.Cancel(id)
	if err != nil {
		slog.Error("Failed to cancel task", "task_id", id, "error", err)
		http.Error(w, "failed to cancel task", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "task is no longer pending", http.StatusConflict)
		return
	}
	slog.Info("User task cancelled", "task_id", id)
	util.WriteJSONResponse(w, http.StatusOK, models.CompleteTaskResponse{OK: true})
}

func mapTaskToApi(t *domain.UserTask) models.UserTaskApiResponse {
	resp := models.UserTaskApiResponse{
		ID:          t.ID,
		ExecutionID: t.ExecutionID,
		StepName:    t.StepName,
		Assignee:    t.Assignee,
		TaskType:    t.TaskType,
		Status:      t.Status,
		CreatedAt:   t.Created,
	}
	if t.Form.Valid && t.Form.String != "" {
		var form map[string]any
		if err := json.Unmarshal([]byte(t.Form.String), &form); err == nil {
			resp.Form = form
		}
	}
	if t.Result.Valid && t.Result.String != "" {
		var result map[string]any
		if err := json.Unmarshal([]byte(t.Result.String), &result); err == nil {
			resp.Result = result
		}
	}
	if t.Completed.Valid {
		ts := t.Completed.Time
		resp.CompletedAt = &ts
	}
	return resp
}
