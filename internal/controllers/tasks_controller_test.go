package controllers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

func TestTasksController_Complete_Success(t *testing.T) {
	var completedID, completedResult string
	repo := &MockTaskRepo{
		CompleteFunc: func(id string, resultJSON string) (bool, error) {
			completedID = id
			completedResult = resultJSON
			return true, nil
		},
	}
	c := NewTasksController(repo)

	req := httptest.NewRequest("POST", "/api/tasks/task-1/complete",
		strings.NewReader(`{"result": {"approved": true}}`))
	req.SetPathValue("id", "task-1")
	w := httptest.NewRecorder()

	c.handleCompleteTask(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if completedID != "task-1" {
		t.Errorf("Expected completion of task-1, got %q", completedID)
	}
	if !strings.Contains(completedResult, `"approved":true`) {
		t.Errorf("Expected serialized result, got %s", completedResult)
	}
}

func TestTasksController_Complete_ConflictWhenNotPending(t *testing.T) {
	repo := &MockTaskRepo{
		CompleteFunc: func(string, string) (bool, error) { return false, nil },
	}
	c := NewTasksController(repo)

	req := httptest.NewRequest("POST", "/api/tasks/task-1/complete", strings.NewReader(`{}`))
	req.SetPathValue("id", "task-1")
	w := httptest.NewRecorder()

	c.handleCompleteTask(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Result().StatusCode)
	}
}

func TestTasksController_Cancel_ConflictWhenAlreadyCompleted(t *testing.T) {
	repo := &MockTaskRepo{
		CancelFunc: func(string) (bool, error) { return false, nil },
	}
	c := NewTasksController(repo)

	req := httptest.NewRequest("POST", "/api/tasks/task-1/cancel", nil)
	req.SetPathValue("id", "task-1")
	w := httptest.NewRecorder()

	c.handleCancelTask(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Result().StatusCode)
	}
}

func TestTasksController_Get_Success(t *testing.T) {
	repo := &MockTaskRepo{
		FindByIDFunc: func(id string) (*domain.UserTask, error) {
			task := &domain.UserTask{
				ID:          id,
				ExecutionID: "ex-1",
				Assignee:    "user-7",
				TaskType:    "approval",
				Status:      models.TaskPending,
				Created:     testTime(),
			}
			task.Form = sql.NullString{String: `{"title": "Approve?"}`, Valid: true}
			return task, nil
		},
	}
	c := NewTasksController(repo)

	req := httptest.NewRequest("GET", "/api/tasks/task-1", nil)
	req.SetPathValue("id", "task-1")
	w := httptest.NewRecorder()

	c.handleGetTask(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	out, err := decodeResponse[models.UserTaskApiResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Assignee != "user-7" || out.Status != models.TaskPending {
		t.Errorf("Unexpected task payload: %+v", out)
	}
	if out.Form["title"] != "Approve?" {
		t.Errorf("Expected decoded form, got %v", out.Form)
	}
}

func TestTasksController_ByAssignee(t *testing.T) {
	repo := &MockTaskRepo{
		FindPendingByAssigneeFunc: func(assignee string, limit int) (*[]domain.UserTask, error) {
			return &[]domain.UserTask{
				{ID: "task-1", ExecutionID: "ex-1", Assignee: assignee, Status: models.TaskPending, Created: testTime()},
				{ID: "task-2", ExecutionID: "ex-2", Assignee: assignee, Status: models.TaskPending, Created: testTime()},
			}, nil
		},
	}
	c := NewTasksController(repo)

	req := httptest.NewRequest("GET", "/api/tasks/byAssignee/user-7", nil)
	req.SetPathValue("assignee", "user-7")
	w := httptest.NewRecorder()

	c.handleGetTasksByAssignee(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	out, err := decodeResponse[[]models.UserTaskApiResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(out))
	}
}
