package domain

import (
	"database/sql"
	"time"
)

// Execution is one workflow run as persisted. State and current_step form
// the checkpoint a crashed run is resumed from.
type Execution struct {
	ID              string
	WorkflowSlug    string
	WorkflowVersion int
	CompanyID       sql.NullString
	Status          string
	CurrentStep     string
	StepCount       int
	State           sql.NullString
	Error           sql.NullString
	RunnerID        sql.NullInt64
	Created         time.Time
	Modified        time.Time
	Started         sql.NullTime
	Completed       sql.NullTime
}
