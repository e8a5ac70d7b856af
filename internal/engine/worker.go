package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/recordflow/recordflow/internal/config"
	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

func (m *ExecutionManager) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case qr := <-m.queue:
			slog.Info("Worker picked up execution", "worker_id", workerID, "execution_id", qr.executionID, "workflow", qr.def.Slug)
			m.runExecution(ctx, qr)
			slog.Info("Worker finished execution", "worker_id", workerID, "execution_id", qr.executionID)
		}
	}
}

func (m *ExecutionManager) runExecution(ctx context.Context, qr queuedRun) {
	claimed, err := m.Executions.AssignRunner(qr.executionID, m.runnerID)
	if err != nil {
		slog.Error("Failed to claim execution", "execution_id", qr.executionID, "error", err)
		return
	}
	if !claimed {
		slog.Warn("Execution already claimed by another runner", "execution_id", qr.executionID)
		return
	}
	if err := m.Executions.MarkStarted(qr.executionID); err != nil {
		slog.Error("Failed to mark execution started", "execution_id", qr.executionID, "error", err)
	}
	m.saveEvent(qr.executionID, "EXECUTING", qr.startStep, "execution picked up")

	interp := NewInterpreter(m.Registry, m.substrate, m.Tasks, m.clock)
	if poll, err := time.ParseDuration(config.GetSystemSettingString(config.TASK_POLL_INTERVAL)); err == nil && poll > 0 {
		interp.TaskPollInterval = poll
	}
	interp.Journal = func(eventType, name, text string) {
		m.saveEvent(qr.executionID, eventType, name, text)
	}
	interp.OnTransition = func(from, next string, state core.ExecutionState, stepCount int) {
		b, err := json.Marshal(state.AsMap())
		if err != nil {
			slog.Error("Failed to serialize execution state", "execution_id", qr.executionID, "error", err)
			return
		}
		if err := m.Executions.UpdateCheckpoint(qr.executionID, next, string(b), stepCount); err != nil {
			slog.Error("Failed to checkpoint execution", "execution_id", qr.executionID, "error", err)
		}
		m.saveEvent(qr.executionID, "TRANSITION", from, fmt.Sprintf("from %s to %s", from, displayStep(next)))
	}

	var res RunResult
	if qr.resume {
		res = interp.Resume(ctx, qr.executionID, qr.def, qr.startStep, qr.state, qr.stepCount)
	} else {
		res = interp.Run(ctx, qr.executionID, qr.def, qr.trigger, nil)
	}

	stateJSON := "{}"
	if b, err := json.Marshal(res.FinalState.AsMap()); err == nil {
		stateJSON = string(b)
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if err := m.Executions.MarkCompleted(qr.executionID, res.Status, stateJSON, res.StepCount, errMsg); err != nil {
		slog.Error("Failed to finalize execution", "execution_id", qr.executionID, "error", err)
	}
	if res.Status == models.ExecutionCompleted {
		m.saveEvent(qr.executionID, "FINISHED", "", fmt.Sprintf("completed after %d steps", res.StepCount))
	} else {
		m.saveEvent(qr.executionID, "FAILED", "", fmt.Sprintf("finished with status %s: %s", res.Status, errMsg))
	}
	if err := m.Executions.ClearRunner(qr.executionID); err != nil {
		slog.Error("Failed to release execution", "execution_id", qr.executionID, "error", err)
	}
}

func displayStep(step string) string {
	if step == models.TerminalStep {
		return "<end>"
	}
	return step
}
