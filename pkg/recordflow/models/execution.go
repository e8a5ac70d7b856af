package models

// Execution statuses as persisted on the execution record.
const (
	ExecutionRunning   = "RUNNING"
	ExecutionCompleted = "COMPLETED"
	ExecutionFailed    = "FAILED"
	ExecutionTimedOut  = "TIMED_OUT"
)

// User task statuses. Tasks are never deleted; a task leaves PENDING exactly
// once, either by external completion or by timeout-driven cancellation.
const (
	TaskPending   = "PENDING"
	TaskCompleted = "COMPLETED"
	TaskCancelled = "CANCELLED"
)
