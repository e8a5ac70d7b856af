package repository

import (
	"database/sql"
	"strings"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// UserTaskRepository persists human tasks. Complete and Cancel are single
// guarded UPDATEs: whichever records first wins, the loser sees zero rows
// affected. That is the whole completion-versus-timeout race guard.
type UserTaskRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewUserTaskRepository(db *sql.DB, clock core.Clock) *UserTaskRepository {
	return &UserTaskRepository{db: db, clock: clock}
}

const userTaskColumns = ` id, execution_id, step_name, assignee, task_type, form, status, result, created, completed `

func (r *UserTaskRepository) Save(t *domain.UserTask) error {
	t.Created = r.clock.Now()
	vals := []interface{}{t.ID, t.ExecutionID, t.StepName, t.Assignee, t.TaskType, t.Form, t.Status, t.Result,
		formatDateInDatabase(t.Created), formatDateInDatabaseNull(t.Completed)}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	query := `INSERT INTO user_task (` + userTaskColumns + `) VALUES (` + strings.Join(pps, ", ") + `)`
	_, err := r.db.Exec(query, vals...)
	return err
}

func (r *UserTaskRepository) FindByID(id string) (*domain.UserTask, error) {
	query := `
		SELECT ` + userTaskColumns + `
		FROM user_task WHERE id = ` + placeholder(1) + `
	`
	var t domain.UserTask
	err := r.db.QueryRow(query, id).Scan(
		&t.ID, &t.ExecutionID, &t.StepName, &t.Assignee, &t.TaskType, &t.Form, &t.Status, &t.Result,
		&t.Created, &t.Completed,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Complete records an external completion with its result. Returns false if
// the task already left PENDING (completed elsewhere or cancelled on
// timeout); a late completion is a no-op, never an overwrite.
func (r *UserTaskRepository) Complete(id string, resultJSON string) (bool, error) {
	query := `UPDATE user_task SET status = '` + models.TaskCompleted + `', result = ` + placeholder(1) + `,
		completed = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + ` AND status = '` + models.TaskPending + `'`
	res, err := r.db.Exec(query, resultJSON, formatDateInDatabase(r.clock.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Cancel marks a pending task cancelled. Returns false if it was no longer
// pending, meaning a completion won the race.
func (r *UserTaskRepository) Cancel(id string) (bool, error) {
	query := `UPDATE user_task SET status = '` + models.TaskCancelled + `',
		completed = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND status = '` + models.TaskPending + `'`
	res, err := r.db.Exec(query, formatDateInDatabase(r.clock.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *UserTaskRepository) FindPendingByAssignee(assignee string, limit int) (*[]domain.UserTask, error) {
	query := `
		SELECT ` + userTaskColumns + `
		FROM user_task
		WHERE assignee = ` + placeholder(1) + ` AND status = '` + models.TaskPending + `'
		ORDER BY created ASC
		LIMIT ` + placeholder(2) + `
	`
	return r.queryMany(query, assignee, limit)
}

func (r *UserTaskRepository) FindByExecutionID(executionID string) (*[]domain.UserTask, error) {
	query := `
		SELECT ` + userTaskColumns + `
		FROM user_task
		WHERE execution_id = ` + placeholder(1) + `
		ORDER BY created ASC
	`
	return r.queryMany(query, executionID)
}

func (r *UserTaskRepository) queryMany(query string, args ...interface{}) (*[]domain.UserTask, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserTask
	for rows.Next() {
		var t domain.UserTask
		if err := rows.Scan(
			&t.ID, &t.ExecutionID, &t.StepName, &t.Assignee, &t.TaskType, &t.Form, &t.Status, &t.Result,
			&t.Created, &t.Completed,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return &out, rows.Err()
}
