package domain

import "time"

// Runner is one engine process. Executions are owned by a runner while they
// execute; a runner whose last_active goes stale is considered dead and its
// executions become eligible for repair.
type Runner struct {
	ID         int64
	Name       string
	Host       string
	Started    time.Time
	LastActive time.Time
}
