package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/interpolate"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

func (it *Interpreter) runUserTask(ctx context.Context, executionID, name string, s *models.UserTaskStep, state core.ExecutionState) (string, stepOutcome) {
	var timeout time.Duration
	if s.Timeout != "" {
		d, err := models.ParseDuration(s.Timeout)
		if err != nil {
			return models.TerminalStep, stepOutcome{status: statusError,
				err: definitionErrorf("step %q userTask timeout %q: %v", name, s.Timeout, err)}
		}
		timeout = d
	}

	stateMap := state.AsMap()
	task, err := it.attachStepTask(name, executionID)
	if err != nil {
		return it.taskError(name, s, fmt.Errorf("looking up user task: %w", err))
	}
	if task != nil {
		it.journal("TASK_RESUMED", name, fmt.Sprintf("re-attached to task %s", task.ID))
	} else {
		task = &domain.UserTask{
			ID:          uuid.NewString(),
			ExecutionID: executionID,
			StepName:    name,
			Assignee:    interpolate.Stringify(interpolate.Interpolate(s.Assignee, stateMap)),
			TaskType:    s.TaskType,
			Status:      models.TaskPending,
		}
		if s.Form != nil {
			form := interpolate.Interpolate(s.Form, stateMap)
			if b, err := json.Marshal(form); err == nil {
				task.Form = sql.NullString{String: string(b), Valid: true}
			}
		}
		if err := it.Tasks.Save(task); err != nil {
			return it.taskError(name, s, fmt.Errorf("creating user task: %w", err))
		}
		it.journal("TASK_CREATED", name, fmt.Sprintf("task %s assigned to %s", task.ID, task.Assignee))
	}

	var final *domain.UserTask
	var done bool
	if task.Status != models.TaskPending {
		// The answer arrived while no runner was watching.
		final, done = task, true
	} else if wait, expired := taskDeadline(task, timeout, it.Clock.Now()); !expired {
		done, err = it.Substrate.Await(ctx, wait, it.TaskPollInterval, func(ctx context.Context) (bool, error) {
			t, err := it.Tasks.FindByID(task.ID)
			if err != nil {
				return false, err
			}
			if t.Status != models.TaskPending {
				final = t
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return it.taskError(name, s, fmt.Errorf("waiting on user task %s: %w", task.ID, err))
		}
	}

	if !done {
		// Deadline elapsed. Cancel the task, but a completion that was
		// written first wins over the timeout.
		cancelled, cerr := it.Tasks.Cancel(task.ID)
		if cerr != nil {
			return it.taskError(name, s, fmt.Errorf("cancelling user task %s: %w", task.ID, cerr))
		}
		if !cancelled {
			if t, ferr := it.Tasks.FindByID(task.ID); ferr == nil && t.Status == models.TaskCompleted {
				final = t
				done = true
			}
		}
	}

	if !done {
		it.journal("TASK_TIMEOUT", name, fmt.Sprintf("task %s timed out after %s", task.ID, s.Timeout))
		next := s.OnTimeout
		if next == models.TerminalStep {
			next = s.OnError
		}
		if next != models.TerminalStep {
			return next, stepOutcome{status: statusTimeout}
		}
		return models.TerminalStep, stepOutcome{status: statusTimeout,
			err: fmt.Errorf("step %q user task %s timed out", name, task.ID)}
	}

	switch final.Status {
	case models.TaskCompleted:
		it.journal("TASK_COMPLETED", name, fmt.Sprintf("task %s completed", task.ID))
		if s.OutputPath != "" && final.Result.Valid {
			var result map[string]any
			if err := json.Unmarshal([]byte(final.Result.String), &result); err == nil && result != nil {
				state.SetPath(s.OutputPath, result)
			}
		}
		return s.OnSuccess, stepOutcome{}
	case models.TaskCancelled:
		it.journal("TASK_CANCELLED", name, fmt.Sprintf("task %s cancelled", task.ID))
		return it.taskError(name, s, fmt.Errorf("user task %s was cancelled", task.ID))
	}
	return it.taskError(name, s, fmt.Errorf("user task %s in unexpected status %s", task.ID, final.Status))
}

// attachStepTask finds the task a previous run of this step already created,
// so a crash and repair never issues the assignee a duplicate. A completed
// answer wins over a pending one; extra pending duplicates left behind by
// earlier crashes are cancelled.
func (it *Interpreter) attachStepTask(step, executionID string) (*domain.UserTask, error) {
	rows, err := it.Tasks.FindByExecutionID(executionID)
	if err != nil {
		return nil, err
	}
	var attached *domain.UserTask
	for i := range *rows {
		t := &(*rows)[i]
		if t.StepName != step || t.Status == models.TaskCancelled {
			continue
		}
		if attached == nil || (attached.Status == models.TaskPending && t.Status == models.TaskCompleted) {
			attached = t
		}
	}
	if attached == nil {
		return nil, nil
	}
	for i := range *rows {
		t := &(*rows)[i]
		if t.ID == attached.ID || t.StepName != step || t.Status != models.TaskPending {
			continue
		}
		if _, err := it.Tasks.Cancel(t.ID); err != nil {
			return nil, err
		}
		it.journal("TASK_CANCELLED", step, fmt.Sprintf("cancelled duplicate task %s", t.ID))
	}
	return attached, nil
}

// taskDeadline turns the step timeout into the remaining wait for task. The
// deadline is absolute from task creation, so resuming from a checkpoint does
// not restart the clock.
func taskDeadline(task *domain.UserTask, timeout time.Duration, now time.Time) (wait time.Duration, expired bool) {
	if timeout <= 0 {
		return 0, false
	}
	wait = timeout
	if !task.Created.IsZero() {
		wait = timeout - now.Sub(task.Created)
	}
	return wait, wait <= 0
}

func (it *Interpreter) taskError(name string, s *models.UserTaskStep, err error) (string, stepOutcome) {
	it.journal("ERROR", name, err.Error())
	if s.OnError != models.TerminalStep {
		return s.OnError, stepOutcome{status: statusError}
	}
	return models.TerminalStep, stepOutcome{status: statusError, err: fmt.Errorf("step %q: %w", name, err)}
}
