package models

import (
	"encoding/json"
	"fmt"
)

// WorkflowDefinition is the named, versioned step graph with one designated
// entry step. Definitions are immutable once an execution has started; a
// changed graph is stored as a new version.
type WorkflowDefinition struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Version     int     `json:"version"`
	InitialStep string  `json:"initialStep"`
	Steps       StepSet `json:"steps"`
}

// ParseWorkflowDefinition decodes and validates a stored definition.
func ParseWorkflowDefinition(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid workflow definition JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate enforces the structural invariants: the entry step exists, every
// routing target names an existing step or the terminal sentinel, and every
// parallel branch graph holds the same invariants.
func (d *WorkflowDefinition) Validate() error {
	if d.Slug == "" {
		return fmt.Errorf("workflow definition requires a slug")
	}
	if d.InitialStep == TerminalStep {
		return fmt.Errorf("workflow %q: initialStep is required", d.Slug)
	}
	return validateGraph(d.Slug, d.InitialStep, d.Steps)
}

func validateGraph(scope, initial string, steps StepSet) error {
	if len(steps) == 0 {
		return fmt.Errorf("workflow %q: no steps defined", scope)
	}
	if _, ok := steps[initial]; !ok {
		return fmt.Errorf("workflow %q: initial step %q does not exist", scope, initial)
	}
	for name, step := range steps {
		for _, target := range step.RoutingTargets() {
			if _, ok := steps[target]; !ok {
				return fmt.Errorf("workflow %q: step %q routes to unknown step %q", scope, name, target)
			}
		}
		if p, ok := step.(*ParallelStep); ok {
			for branch, sub := range p.Branches {
				if sub == nil {
					return fmt.Errorf("workflow %q: parallel step %q branch %q is empty", scope, name, branch)
				}
				if err := validateGraph(scope+"/"+name+"/"+branch, sub.InitialStep, sub.Steps); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
