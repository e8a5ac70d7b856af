package repository

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// ExecutionRepository persists workflow runs. The state/current_step pair is
// the durable checkpoint; runner_id marks in-process ownership.
type ExecutionRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewExecutionRepository(db *sql.DB, clock core.Clock) *ExecutionRepository {
	return &ExecutionRepository{db: db, clock: clock}
}

const executionColumns = ` id, workflow_slug, workflow_version, company_id, status, current_step,
		step_count, state, error, runner_id, created, modified, started, completed `

func (r *ExecutionRepository) Save(ex *domain.Execution) error {
	now := r.clock.Now()
	ex.Created = now
	ex.Modified = now

	vals := []interface{}{ex.ID, ex.WorkflowSlug, ex.WorkflowVersion, ex.CompanyID, ex.Status,
		ex.CurrentStep, ex.StepCount, ex.State, ex.Error, ex.RunnerID,
		formatDateInDatabase(ex.Created), formatDateInDatabase(ex.Modified),
		formatDateInDatabaseNull(ex.Started), formatDateInDatabaseNull(ex.Completed)}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	query := `INSERT INTO execution (` + executionColumns + `) VALUES (` + strings.Join(pps, ", ") + `)`
	_, err := r.db.Exec(query, vals...)
	return err
}

func (r *ExecutionRepository) FindByID(id string) (*domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution WHERE id = ` + placeholder(1) + `
	`
	var ex domain.Execution
	err := r.db.QueryRow(query, id).Scan(
		&ex.ID, &ex.WorkflowSlug, &ex.WorkflowVersion, &ex.CompanyID, &ex.Status,
		&ex.CurrentStep, &ex.StepCount, &ex.State, &ex.Error, &ex.RunnerID,
		&ex.Created, &ex.Modified, &ex.Started, &ex.Completed,
	)
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *ExecutionRepository) FindByWorkflowSlug(slug string, limit int) (*[]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution
		WHERE workflow_slug = ` + placeholder(1) + `
		ORDER BY created DESC
		LIMIT ` + placeholder(2) + `
	`
	return r.queryMany(query, slug, limit)
}

// MarkStarted stamps the starting time once, when the run first leaves the
// queue.
func (r *ExecutionRepository) MarkStarted(id string) error {
	query := `UPDATE execution SET started = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND started IS NULL`
	now := formatDateInDatabase(r.clock.Now())
	_, err := r.db.Exec(query, now, now, id)
	return err
}

// UpdateCheckpoint persists the step loop's progress after every transition.
func (r *ExecutionRepository) UpdateCheckpoint(id string, currentStep string, stateJSON string, stepCount int) error {
	query := `UPDATE execution SET current_step = ` + placeholder(1) + `, state = ` + placeholder(2) + `,
		step_count = ` + placeholder(3) + `, modified = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5)
	_, err := r.db.Exec(query, currentStep, stateJSON, stepCount, formatDateInDatabase(r.clock.Now()), id)
	return err
}

// MarkCompleted finalizes the run with its terminal status and final state.
func (r *ExecutionRepository) MarkCompleted(id string, status string, stateJSON string, stepCount int, errMsg string) error {
	query := `UPDATE execution SET status = ` + placeholder(1) + `, state = ` + placeholder(2) + `,
		step_count = ` + placeholder(3) + `, error = ` + placeholder(4) + `,
		completed = ` + placeholder(5) + `, modified = ` + placeholder(6) + `
		WHERE id = ` + placeholder(7)
	now := formatDateInDatabase(r.clock.Now())
	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := r.db.Exec(query, status, stateJSON, stepCount, errVal, now, now, id)
	return err
}

// AssignRunner claims an unowned execution. Returns false when another
// runner got there first.
func (r *ExecutionRepository) AssignRunner(id string, runnerID int64) (bool, error) {
	query := `UPDATE execution SET runner_id = ` + placeholder(1) + `, modified = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND runner_id IS NULL`
	res, err := r.db.Exec(query, runnerID, formatDateInDatabase(r.clock.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ExecutionRepository) ClearRunner(id string) error {
	query := `UPDATE execution SET runner_id = NULL, modified = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2)
	_, err := r.db.Exec(query, formatDateInDatabase(r.clock.Now()), id)
	return err
}

// FindStuckExecutions returns RUNNING executions whose owning runner has
// not heartbeat within the staleness window. The repair loop releases them
// and resumes from the checkpoint.
func (r *ExecutionRepository) FindStuckExecutions(staleMinutes string, limit int) (*[]domain.Execution, error) {
	mins, err := strconv.Atoi(staleMinutes)
	if err != nil || mins <= 0 {
		mins = 5
	}
	staleBefore := r.clock.Now().UTC().Add(-time.Duration(mins) * time.Minute)

	query := `
		SELECT ` + executionColumns + `
		FROM execution
		WHERE status = '` + models.ExecutionRunning + `'
		  AND started IS NOT NULL
		  AND runner_id IN (
			SELECT id FROM runner WHERE ` + dateBefore("last_active", staleBefore) + `
		  )
		ORDER BY modified ASC
		LIMIT ` + placeholder(1) + `
	`
	return r.queryMany(query, limit)
}

func (r *ExecutionRepository) queryMany(query string, args ...interface{}) (*[]domain.Execution, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		var ex domain.Execution
		if err := rows.Scan(
			&ex.ID, &ex.WorkflowSlug, &ex.WorkflowVersion, &ex.CompanyID, &ex.Status,
			&ex.CurrentStep, &ex.StepCount, &ex.State, &ex.Error, &ex.RunnerID,
			&ex.Created, &ex.Modified, &ex.Started, &ex.Completed,
		); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return &out, rows.Err()
}
