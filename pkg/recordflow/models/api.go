package models

import "time"

// StartExecutionRequest starts a workflow run by slug with a caller-supplied
// trigger payload, bypassing the change-capture channel.
type StartExecutionRequest struct {
	WorkflowSlug string         `json:"workflowSlug"`
	Trigger      TriggerPayload `json:"trigger"`
}

type StartExecutionResponse struct {
	ID string `json:"id"`
}

// ExecutionApiResponse is the query surface for one execution record.
type ExecutionApiResponse struct {
	ID           string         `json:"id"`
	WorkflowSlug string         `json:"workflowSlug"`
	Version      int            `json:"version"`
	Status       string         `json:"status"`
	CurrentStep  string         `json:"currentStep,omitempty"`
	StepCount    int            `json:"stepCount"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// UserTaskApiResponse is the query surface for one human task.
type UserTaskApiResponse struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"executionId"`
	StepName    string         `json:"stepName,omitempty"`
	Assignee    string         `json:"assignee"`
	TaskType    string         `json:"taskType,omitempty"`
	Form        map[string]any `json:"form,omitempty"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

type CompleteTaskRequest struct {
	Result map[string]any `json:"result"`
}

type CompleteTaskResponse struct {
	OK bool `json:"ok"`
}

type SaveDefinitionResponse struct {
	Slug    string `json:"slug"`
	Version int    `json:"version"`
}
