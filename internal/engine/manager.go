package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/recordflow/recordflow/internal/activities"
	"github.com/recordflow/recordflow/internal/config"
	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

type queuedRun struct {
	executionID string
	def         *models.WorkflowDefinition
	trigger     *models.TriggerPayload
	startStep   string
	state       core.ExecutionState
	stepCount   int
	resume      bool
}

// ExecutionManager owns the worker pool. It accepts run requests from the
// API and the event dispatcher, claims executions for this runner, drives
// the interpreter and checkpoints progress after every step.
type ExecutionManager struct {
	Definitions DefinitionRepo
	Executions  ExecutionRepo
	Events      EventRepo
	Tasks       TaskRepo
	Runners     RunnerRepo
	Registry    *activities.Registry

	clock     core.Clock
	substrate Substrate
	runnerID  int64
	queue     chan queuedRun
	stopped   chan struct{}
}

func NewExecutionManager(
	definitions DefinitionRepo,
	executions ExecutionRepo,
	events EventRepo,
	tasks TaskRepo,
	runners RunnerRepo,
	registry *activities.Registry,
	clock core.Clock,
) *ExecutionManager {
	queueSize := config.GetSystemSettingInteger(config.ENGINE_QUEUE_SIZE)
	if queueSize < 1 {
		queueSize = 10
	}
	return &ExecutionManager{
		Definitions: definitions,
		Executions:  executions,
		Events:      events,
		Tasks:       tasks,
		Runners:     runners,
		Registry:    registry,
		clock:       clock,
		substrate:   NewSubstrate(clock),
		queue:       make(chan queuedRun, queueSize),
		stopped:     make(chan struct{}),
	}
}

// Start registers this process as a runner, spins up the worker pool and
// the heartbeat and repair loops, then blocks until ctx is cancelled.
func (m *ExecutionManager) Start(ctx context.Context) {
	defer close(m.stopped)
	if err := m.registerRunner(); err != nil {
		slog.Error("Failed to register runner", "error", err)
		return
	}

	workers := config.GetSystemSettingInteger(config.ENGINE_WORKER_COUNT)
	if workers < 1 {
		workers = 5
	}
	slog.Info("Starting workflow engine", "runner_id", m.runnerID, "workers", workers, "queue_size", cap(m.queue))

	for i := 0; i < workers; i++ {
		go m.worker(ctx, i)
	}
	go m.heartbeatLoop(ctx)
	go m.repairLoop(ctx)

	<-ctx.Done()
	slog.Info("Workflow engine stopping")
}

// StartBySlug starts a new execution of the latest stored version of the
// workflow. This is the path change events arrive through.
func (m *ExecutionManager) StartBySlug(slug string, trigger *models.TriggerPayload) (string, error) {
	row, err := m.Definitions.FindBySlug(slug)
	if err != nil {
		return "", fmt.Errorf("workflow %q: %w", slug, err)
	}
	def, err := models.ParseWorkflowDefinition([]byte(row.Definition))
	if err != nil {
		return "", fmt.Errorf("workflow %q: %w", slug, err)
	}
	def.Slug = row.Slug
	def.Version = row.Version
	return m.StartExecution(def, trigger)
}

// StartExecution persists a new RUNNING execution and enqueues it.
func (m *ExecutionManager) StartExecution(def *models.WorkflowDefinition, trigger *models.TriggerPayload) (string, error) {
	ex := &domain.Execution{
		ID:              uuid.NewString(),
		WorkflowSlug:    def.Slug,
		WorkflowVersion: def.Version,
		Status:          models.ExecutionRunning,
		CurrentStep:     def.InitialStep,
	}
	if trigger != nil && trigger.CompanyID != "" {
		ex.CompanyID = sql.NullString{String: trigger.CompanyID, Valid: true}
	}
	if err := m.Executions.Save(ex); err != nil {
		return "", err
	}
	m.enqueue(queuedRun{executionID: ex.ID, def: def, trigger: trigger, startStep: def.InitialStep})
	return ex.ID, nil
}

// Resume re-enqueues a RUNNING execution from its last checkpoint. Used by
// the repair loop after a runner dies mid-run.
func (m *ExecutionManager) Resume(executionID string) error {
	ex, err := m.Executions.FindByID(executionID)
	if err != nil {
		return err
	}
	if ex.Status != models.ExecutionRunning {
		return fmt.Errorf("execution %s is %s, not resumable", executionID, ex.Status)
	}
	row, err := m.Definitions.FindBySlugAndVersion(ex.WorkflowSlug, ex.WorkflowVersion)
	if err != nil {
		return fmt.Errorf("definition for execution %s: %w", executionID, err)
	}
	def, err := models.ParseWorkflowDefinition([]byte(row.Definition))
	if err != nil {
		return fmt.Errorf("definition for execution %s: %w", executionID, err)
	}
	def.Slug = row.Slug
	def.Version = row.Version

	var stateMap map[string]any
	if ex.State.Valid && ex.State.String != "" {
		if err := json.Unmarshal([]byte(ex.State.String), &stateMap); err != nil {
			return fmt.Errorf("checkpoint state for execution %s: %w", executionID, err)
		}
	}
	m.enqueue(queuedRun{
		executionID: executionID,
		def:         def,
		startStep:   ex.CurrentStep,
		state:       core.NewExecutionState(stateMap),
		stepCount:   ex.StepCount,
		resume:      true,
	})
	return nil
}

func (m *ExecutionManager) enqueue(qr queuedRun) {
	select {
	case m.queue <- qr:
	default:
		// Queue full; hand off asynchronously so API callers never block.
		// If the engine stops first the run stays RUNNING in the database
		// and a later repair scan resumes it on another runner.
		go func() {
			select {
			case m.queue <- qr:
			case <-m.stopped:
				slog.Warn("Engine stopped before queued run could start", "execution_id", qr.executionID)
			}
		}()
	}
}

func (m *ExecutionManager) registerRunner() error {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	runner := &domain.Runner{
		Name: "recordflow-" + uuid.NewString()[:8],
		Host: host,
	}
	id, err := m.Runners.Save(runner)
	if err != nil {
		return err
	}
	m.runnerID = id
	return nil
}

func (m *ExecutionManager) heartbeatLoop(ctx context.Context) {
	interval, err := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_HEARTBEAT_INTERVAL))
	if err != nil || interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Runners.UpdateLastActive(m.runnerID, m.clock.Now()); err != nil {
				slog.Error("Failed to update runner heartbeat", "runner_id", m.runnerID, "error", err)
			}
		}
	}
}

// repairLoop finds RUNNING executions whose runner stopped heartbeating and
// resumes them from their checkpoint on this runner.
func (m *ExecutionManager) repairLoop(ctx context.Context) {
	interval, err := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_REPAIR_INTERVAL))
	if err != nil || interval <= 0 {
		interval = time.Minute
	}
	staleMinutes := config.GetSystemSettingString(config.ENGINE_REPAIR_AFTER_MINUTES)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := m.Executions.FindStuckExecutions(staleMinutes, 100)
			if err != nil {
				slog.Error("Failed to scan for stuck executions", "error", err)
				continue
			}
			for _, ex := range *stuck {
				slog.Warn("Repairing stuck execution", "execution_id", ex.ID, "current_step", ex.CurrentStep)
				m.saveEvent(ex.ID, "REPAIRED", ex.CurrentStep, "execution released from stale runner")
				if err := m.Executions.ClearRunner(ex.ID); err != nil {
					slog.Error("Failed to release stuck execution", "execution_id", ex.ID, "error", err)
					continue
				}
				if err := m.Resume(ex.ID); err != nil {
					slog.Error("Failed to resume stuck execution", "execution_id", ex.ID, "error", err)
				}
			}
		}
	}
}

func (m *ExecutionManager) saveEvent(executionID, eventType, name, text string) {
	_, err := m.Events.Save(&domain.ExecutionEvent{
		ExecutionID: executionID,
		RunnerID:    m.runnerID,
		Type:        eventType,
		Name:        name,
		Text:        text,
	})
	if err != nil {
		slog.Error("Failed to save execution event", "execution_id", executionID, "type", eventType, "error", err)
	}
}
