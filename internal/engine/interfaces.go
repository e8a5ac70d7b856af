package engine

import (
	"time"

	"github.com/recordflow/recordflow/pkg/recordflow/domain"
)

// The engine declares the persistence surface it needs; the repository
// package implements it. Tests swap in hand-rolled mocks.

type DefinitionRepo interface {
	Save(def *domain.WorkflowDefinition) (int64, error)
	FindBySlug(slug string) (*domain.WorkflowDefinition, error)
	FindBySlugAndVersion(slug string, version int) (*domain.WorkflowDefinition, error)
	LatestVersion(slug string) (int, error)
	FindAll() (*[]domain.WorkflowDefinition, error)
}

type ExecutionRepo interface {
	Save(ex *domain.Execution) error
	FindByID(id string) (*domain.Execution, error)
	FindByWorkflowSlug(slug string, limit int) (*[]domain.Execution, error)
	MarkStarted(id string) error
	UpdateCheckpoint(id string, currentStep string, stateJSON string, stepCount int) error
	MarkCompleted(id string, status string, stateJSON string, stepCount int, errMsg string) error
	AssignRunner(id string, runnerID int64) (bool, error)
	ClearRunner(id string) error
	FindStuckExecutions(staleMinutes string, limit int) (*[]domain.Execution, error)
}

type EventRepo interface {
	Save(e *domain.ExecutionEvent) (int64, error)
	FindByExecutionID(executionID string) (*[]domain.ExecutionEvent, error)
}

type TaskRepo interface {
	Save(t *domain.UserTask) error
	FindByID(id string) (*domain.UserTask, error)
	Complete(id string, resultJSON string) (bool, error)
	Cancel(id string) (bool, error)
	FindPendingByAssignee(assignee string, limit int) (*[]domain.UserTask, error)
	FindByExecutionID(executionID string) (*[]domain.UserTask, error)
}

type RunnerRepo interface {
	Save(r *domain.Runner) (int64, error)
	UpdateLastActive(id int64, ts time.Time) error
}
