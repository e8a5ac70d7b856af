package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recordflow/recordflow/internal/activities"
	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/expr"
	"github.com/recordflow/recordflow/pkg/recordflow/interpolate"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// MaxSteps caps the number of step executions in a single run. Workflow
// graphs may legitimately loop, so the cap is the only guard against a
// definition that never reaches a terminal step.
const MaxSteps = 100

// Interpreter walks one workflow graph step by step. It carries no
// persistence of its own; the manager observes progress through the
// OnTransition and Journal hooks.
type Interpreter struct {
	Registry         *activities.Registry
	Substrate        Substrate
	Tasks            TaskRepo
	Clock            core.Clock
	TaskPollInterval time.Duration

	// OnTransition fires after each completed step with the routing result,
	// so the caller can checkpoint state before the next step runs.
	OnTransition func(from, next string, state core.ExecutionState, stepCount int)
	// Journal receives noteworthy events (errors, timeouts, task lifecycle)
	// for the execution journal.
	Journal func(eventType, name, text string)
}

func NewInterpreter(registry *activities.Registry, substrate Substrate, tasks TaskRepo, clock core.Clock) *Interpreter {
	return &Interpreter{
		Registry:         registry,
		Substrate:        substrate,
		Tasks:            tasks,
		Clock:            clock,
		TaskPollInterval: time.Second,
	}
}

// RunResult is the outcome of a (possibly nested) graph run.
type RunResult struct {
	Status     string
	FinalState core.ExecutionState
	StepCount  int
	Err        error
}

// Run starts a fresh execution of def. The trigger payload, when present,
// is exposed to interpolation under the "trigger" key.
func (it *Interpreter) Run(ctx context.Context, executionID string, def *models.WorkflowDefinition, trigger *models.TriggerPayload, input map[string]any) RunResult {
	state := core.NewExecutionState(input)
	if trigger != nil {
		state["trigger"] = trigger.AsMap()
	}
	state["_metadata"] = map[string]any{
		"workflowId":  def.Slug,
		"executionId": executionID,
		"startedAt":   it.Clock.Now().UTC().Format(time.RFC3339),
		"currentStep": def.InitialStep,
	}
	return it.runGraph(ctx, executionID, def.Steps, def.InitialStep, state, 0)
}

// Resume continues an execution from a persisted checkpoint.
func (it *Interpreter) Resume(ctx context.Context, executionID string, def *models.WorkflowDefinition, startStep string, state core.ExecutionState, stepCount int) RunResult {
	if state == nil {
		state = core.NewExecutionState(nil)
	}
	return it.runGraph(ctx, executionID, def.Steps, startStep, state, stepCount)
}

type stepStatus int

const (
	statusSuccess stepStatus = iota
	statusError
	statusTimeout
)

type stepOutcome struct {
	status stepStatus
	err    error
}

func (it *Interpreter) runGraph(ctx context.Context, executionID string, steps models.StepSet, startStep string, state core.ExecutionState, stepCount int) RunResult {
	current := startStep
	for current != models.TerminalStep {
		if stepCount >= MaxSteps {
			return RunResult{Status: models.ExecutionFailed, FinalState: state, StepCount: stepCount, Err: ErrStepLimitExceeded}
		}
		step, ok := steps[current]
		if !ok {
			return RunResult{Status: models.ExecutionFailed, FinalState: state, StepCount: stepCount,
				Err: definitionErrorf("step %q does not exist", current)}
		}
		stepCount++
		setCurrentStep(state, current)

		next, outcome := it.dispatch(ctx, executionID, current, step, state)
		if outcome.err != nil {
			status := models.ExecutionFailed
			if outcome.status == statusTimeout {
				status = models.ExecutionTimedOut
			}
			return RunResult{Status: status, FinalState: state, StepCount: stepCount, Err: outcome.err}
		}
		if it.OnTransition != nil {
			it.OnTransition(current, next, state, stepCount)
		}
		current = next
	}
	return RunResult{Status: models.ExecutionCompleted, FinalState: state, StepCount: stepCount}
}

func (it *Interpreter) dispatch(ctx context.Context, executionID, name string, step models.Step, state core.ExecutionState) (string, stepOutcome) {
	switch s := step.(type) {
	case *models.EndStep:
		return models.TerminalStep, stepOutcome{}
	case *models.ActivityStep:
		return it.runActivity(ctx, name, s, state)
	case *models.ConditionStep:
		return it.runCondition(name, s, state)
	case *models.ParallelStep:
		return it.runParallel(ctx, executionID, name, s, state)
	case *models.UserTaskStep:
		return it.runUserTask(ctx, executionID, name, s, state)
	case *models.DelayStep:
		return it.runDelay(ctx, s)
	}
	return models.TerminalStep, stepOutcome{status: statusError,
		err: definitionErrorf("step %q has unsupported kind %T", name, step)}
}

func (it *Interpreter) runActivity(ctx context.Context, name string, s *models.ActivityStep, state core.ExecutionState) (string, stepOutcome) {
	if _, ok := it.Registry.Lookup(s.Name); !ok {
		return models.TerminalStep, stepOutcome{status: statusError,
			err: definitionErrorf("step %q references unknown activity %q", name, s.Name)}
	}

	params, _ := interpolate.Interpolate(s.Params, state.AsMap()).(map[string]any)
	output, err := it.Substrate.Invoke(ctx, s.Retry, func(ctx context.Context) (map[string]any, error) {
		return it.Registry.Invoke(ctx, s.Name, params)
	})
	if err != nil {
		slog.Warn("Activity failed", "step", name, "activity", s.Name, "error", err)
		it.journal("ERROR", name, fmt.Sprintf("activity %s failed: %v", s.Name, err))
		if s.OnError != models.TerminalStep {
			return s.OnError, stepOutcome{status: statusError}
		}
		return models.TerminalStep, stepOutcome{status: statusError,
			err: fmt.Errorf("step %q activity %q failed: %w", name, s.Name, err)}
	}

	if s.OutputPath != "" && output != nil {
		state.SetPath(s.OutputPath, map[string]any(output))
	}
	return s.OnSuccess, stepOutcome{}
}

func (it *Interpreter) runCondition(name string, s *models.ConditionStep, state core.ExecutionState) (string, stepOutcome) {
	resolved := interpolate.Interpolate(s.Expr, state.AsMap())
	text, ok := resolved.(string)
	if !ok {
		text = interpolate.Stringify(resolved)
	}
	result, err := expr.Eval(text)
	if err != nil {
		return models.TerminalStep, stepOutcome{status: statusError,
			err: definitionErrorf("step %q condition %q: %v", name, s.Expr, err)}
	}
	if result {
		return s.OnTrue, stepOutcome{}
	}
	return s.OnFalse, stepOutcome{}
}

func (it *Interpreter) runDelay(ctx context.Context, s *models.DelayStep) (string, stepOutcome) {
	d, err := models.ParseDuration(s.Duration)
	if err != nil {
		return models.TerminalStep, stepOutcome{status: statusError,
			err: definitionErrorf("delay duration %q: %v", s.Duration, err)}
	}
	if err := it.Substrate.Sleep(ctx, d); err != nil {
		return models.TerminalStep, stepOutcome{status: statusError, err: err}
	}
	return s.OnSuccess, stepOutcome{}
}

func (it *Interpreter) journal(eventType, name, text string) {
	if it.Journal != nil {
		it.Journal(eventType, name, text)
	}
}

// branch returns a child interpreter sharing everything but the hooks;
// nested runs report only through their RunResult.
func (it *Interpreter) branch() *Interpreter {
	return &Interpreter{
		Registry:         it.Registry,
		Substrate:        it.Substrate,
		Tasks:            it.Tasks,
		Clock:            it.Clock,
		TaskPollInterval: it.TaskPollInterval,
		Journal:          it.Journal,
	}
}

func setCurrentStep(state core.ExecutionState, step string) {
	if meta, ok := state["_metadata"].(map[string]any); ok {
		meta["currentStep"] = step
	}
}
