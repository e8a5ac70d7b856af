package sqllite

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recordflow/recordflow/internal/repository"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
	"github.com/recordflow/recordflow/test/integration"
)

// A RUNNING execution owned by a runner that stops heartbeating must show
// up in the stuck scan; a fresh heartbeat must hide it again.
func TestStuckExecutionDetection(t *testing.T) {
	runTestWithSetup(t, func(t *testing.T, db *sql.DB) {
		clock := integration.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		executionRepo := repository.NewExecutionRepository(db, clock)
		runnerRepo := repository.NewRunnerRepository(db, clock)

		runnerID, err := runnerRepo.Save(&domain.Runner{Name: "runner-1", Host: "host-a"})
		if err != nil {
			t.Fatalf("Failed to save runner: %v", err)
		}

		ex := &domain.Execution{
			ID:              uuid.NewString(),
			WorkflowSlug:    "contact-validation",
			WorkflowVersion: 1,
			Status:          models.ExecutionRunning,
			CurrentStep:     "validate",
		}
		if err := executionRepo.Save(ex); err != nil {
			t.Fatalf("Failed to save execution: %v", err)
		}
		if ok, err := executionRepo.AssignRunner(ex.ID, runnerID); err != nil || !ok {
			t.Fatalf("Failed to claim execution: ok=%v err=%v", ok, err)
		}
		// A second claim must lose.
		if ok, _ := executionRepo.AssignRunner(ex.ID, runnerID+1); ok {
			t.Error("Execution claimed twice")
		}
		if err := executionRepo.MarkStarted(ex.ID); err != nil {
			t.Fatalf("Failed to mark started: %v", err)
		}

		// Heartbeat is fresh, nothing is stuck yet.
		stuck, err := executionRepo.FindStuckExecutions("5", 10)
		if err != nil {
			t.Fatalf("Stuck scan failed: %v", err)
		}
		if len(*stuck) != 0 {
			t.Fatalf("Expected no stuck executions, got %d", len(*stuck))
		}

		clock.Add(10 * time.Minute)

		stuck, err = executionRepo.FindStuckExecutions("5", 10)
		if err != nil {
			t.Fatalf("Stuck scan failed: %v", err)
		}
		if len(*stuck) != 1 || (*stuck)[0].ID != ex.ID {
			t.Fatalf("Expected the stale execution, got %+v", stuck)
		}

		// A heartbeat rescues the runner.
		if err := runnerRepo.UpdateLastActive(runnerID, clock.Now()); err != nil {
			t.Fatalf("Failed to heartbeat: %v", err)
		}
		stuck, err = executionRepo.FindStuckExecutions("5", 10)
		if err != nil {
			t.Fatalf("Stuck scan failed: %v", err)
		}
		if len(*stuck) != 0 {
			t.Fatalf("Expected no stuck executions after heartbeat, got %d", len(*stuck))
		}

		// Releasing the claim lets another runner pick it up.
		if err := executionRepo.ClearRunner(ex.ID); err != nil {
			t.Fatalf("Failed to release: %v", err)
		}
		if ok, err := executionRepo.AssignRunner(ex.ID, runnerID+1); err != nil || !ok {
			t.Fatalf("Reclaim after release failed: ok=%v err=%v", ok, err)
		}
	})
}
