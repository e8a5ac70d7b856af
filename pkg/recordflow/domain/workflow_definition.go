package domain

import "time"

// WorkflowDefinition is one stored version of a workflow graph. The
// definition column holds the raw JSON exactly as authored.
type WorkflowDefinition struct {
	ID         int64
	Name       string
	Slug       string
	Version    int
	Definition string
	Created    time.Time
	Updated    time.Time
}
