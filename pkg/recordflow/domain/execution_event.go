package domain

import "time"

// ExecutionEvent is one journal entry for an execution: step transitions,
// retries, errors, repairs and audit entries written by activities.
type ExecutionEvent struct {
	ID          int64
	ExecutionID string
	RunnerID    int64
	Type        string
	Name        string
	Text        string
	DateTime    time.Time
}
