package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

func decodeResponse[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var data T
	err := json.NewDecoder(resp.Body).Decode(&data)
	return data, err
}

type MockDefinitionRepo struct {
	SaveFunc                 func(def *domain.WorkflowDefinition) (int64, error)
	FindBySlugFunc           func(slug string) (*domain.WorkflowDefinition, error)
	FindBySlugAndVersionFunc func(slug string, version int) (*domain.WorkflowDefinition, error)
	LatestVersionFunc        func(slug string) (int, error)
	FindAllFunc              func() (*[]domain.WorkflowDefinition, error)
}

func (m *MockDefinitionRepo) Save(def *domain.WorkflowDefinition) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(def)
	}
	return 1, nil
}

func (m *MockDefinitionRepo) FindBySlug(slug string) (*domain.WorkflowDefinition, error) {
	if m.FindBySlugFunc != nil {
		return m.FindBySlugFunc(slug)
	}
	return nil, nil
}

func (m *MockDefinitionRepo) FindBySlugAndVersion(slug string, version int) (*domain.WorkflowDefinition, error) {
	if m.FindBySlugAndVersionFunc != nil {
		return m.FindBySlugAndVersionFunc(slug, version)
	}
	return nil, nil
}

func (m *MockDefinitionRepo) LatestVersion(slug string) (int, error) {
	if m.LatestVersionFunc != nil {
		return m.LatestVersionFunc(slug)
	}
	return 0, nil
}

func (m *MockDefinitionRepo) FindAll() (*[]domain.WorkflowDefinition, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc()
	}
	return &[]domain.WorkflowDefinition{}, nil
}

type MockExecutionRepo struct {
	FindByIDFunc           func(id string) (*domain.Execution, error)
	FindByWorkflowSlugFunc func(slug string, limit int) (*[]domain.Execution, error)
}

func (m *MockExecutionRepo) Save(*domain.Execution) error { return nil }

func (m *MockExecutionRepo) FindByID(id string) (*domain.Execution, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, nil
}

func (m *MockExecutionRepo) FindByWorkflowSlug(slug string, limit int) (*[]domain.Execution, error) {
	if m.FindByWorkflowSlugFunc != nil {
		return m.FindByWorkflowSlugFunc(slug, limit)
	}
	return &[]domain.Execution{}, nil
}

func (m *MockExecutionRepo) MarkStarted(string) error { return nil }

func (m *MockExecutionRepo) UpdateCheckpoint(string, string, string, int) error { return nil }

func (m *MockExecutionRepo) MarkCompleted(string, string, string, int, string) error { return nil }

func (m *MockExecutionRepo) AssignRunner(string, int64) (bool, error) { return true, nil }

func (m *MockExecutionRepo) ClearRunner(string) error { return nil }

func (m *MockExecutionRepo) FindStuckExecutions(string, int) (*[]domain.Execution, error) {
	return &[]domain.Execution{}, nil
}

type MockEventRepo struct {
	FindByExecutionIDFunc func(executionID string) (*[]domain.ExecutionEvent, error)
}

func (m *MockEventRepo) Save(*domain.ExecutionEvent) (int64, error) { return 1, nil }

func (m *MockEventRepo) FindByExecutionID(executionID string) (*[]domain.ExecutionEvent, error) {
	if m.FindByExecutionIDFunc != nil {
		return m.FindByExecutionIDFunc(executionID)
	}
	return &[]domain.ExecutionEvent{}, nil
}

type MockTaskRepo struct {
	FindByIDFunc              func(id string) (*domain.UserTask, error)
	CompleteFunc              func(id string, resultJSON string) (bool, error)
	CancelFunc                func(id string) (bool, error)
	FindPendingByAssigneeFunc func(assignee string, limit int) (*[]domain.UserTask, error)
}

func (m *MockTaskRepo) Save(*domain.UserTask) error { return nil }

func (m *MockTaskRepo) FindByID(id string) (*domain.UserTask, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, nil
}

func (m *MockTaskRepo) Complete(id string, resultJSON string) (bool, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(id, resultJSON)
	}
	return true, nil
}

func (m *MockTaskRepo) Cancel(id string) (bool, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(id)
	}
	return true, nil
}

func (m *MockTaskRepo) FindPendingByAssignee(assignee string, limit int) (*[]domain.UserTask, error) {
	if m.FindPendingByAssigneeFunc != nil {
		return m.FindPendingByAssigneeFunc(assignee, limit)
	}
	return &[]domain.UserTask{}, nil
}

func (m *MockTaskRepo) FindByExecutionID(string) (*[]domain.UserTask, error) {
	return &[]domain.UserTask{}, nil
}

type MockStarter struct {
	StartBySlugFunc func(slug string, trigger *models.TriggerPayload) (string, error)
}

func (m *MockStarter) StartBySlug(slug string, trigger *models.TriggerPayload) (string, error) {
	if m.StartBySlugFunc != nil {
		return m.StartBySlugFunc(slug, trigger)
	}
	return "ex-1", nil
}

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
