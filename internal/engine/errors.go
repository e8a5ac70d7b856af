package engine

import (
	"errors"
	"fmt"
)

// ErrStepLimitExceeded is the safety fuse against cyclic or misauthored
// graphs. Always fatal.
var ErrStepLimitExceeded = errors.New("workflow step limit exceeded")

// DefinitionError means the workflow JSON itself cannot be executed: a
// missing step, an unknown activity, a malformed duration or expression.
// Always fatal, never retried and never routed through onError.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string {
	return "workflow definition error: " + e.Reason
}

func definitionErrorf(format string, args ...any) *DefinitionError {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}
