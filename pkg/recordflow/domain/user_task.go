package domain

import (
	"database/sql"
	"time"
)

// UserTask is an outstanding human task created by a userTask step.
// Rows are never deleted; cancelled and completed tasks stay for audit.
type UserTask struct {
	ID          string
	ExecutionID string
	StepName    string
	Assignee    string
	TaskType    string
	Form        sql.NullString
	Status      string
	Result      sql.NullString
	Created     time.Time
	Completed   sql.NullTime
}
