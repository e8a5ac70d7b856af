package repository

import (
	"database/sql"
	"log/slog"
	"strings"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
)

// ExecutionEventRepository journals everything that happens to a run:
// transitions, retries, errors, repairs and audit entries.
type ExecutionEventRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewExecutionEventRepository(db *sql.DB, clock core.Clock) *ExecutionEventRepository {
	return &ExecutionEventRepository{db: db, clock: clock}
}

func (r *ExecutionEventRepository) Save(e *domain.ExecutionEvent) (int64, error) {
	if e.DateTime.IsZero() {
		e.DateTime = r.clock.Now()
	}
	vals := []interface{}{e.ExecutionID, e.RunnerID, e.Type, e.Name, e.Text, formatDateInDatabase(e.DateTime)}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	base := `INSERT INTO execution_event (execution_id, runner_id, type, name, text, date_time)
		VALUES (` + strings.Join(pps, ", ") + `)`
	var err error
	if supportsReturning() {
		err = r.db.QueryRow(base+" RETURNING id", vals...).Scan(&e.ID)
	} else {
		res, e2 := r.db.Exec(base, vals...)
		if e2 != nil {
			err = e2
		} else {
			id, e3 := res.LastInsertId()
			if e3 != nil {
				err = e3
			} else {
				e.ID = id
			}
		}
	}
	if err != nil {
		slog.Error("Failed to save execution event", "error", err)
	}
	return e.ID, err
}

func (r *ExecutionEventRepository) FindByExecutionID(executionID string) (*[]domain.ExecutionEvent, error) {
	query := `
		SELECT id, execution_id, runner_id, type, name, text, date_time
		FROM execution_event
		WHERE execution_id = ` + placeholder(1) + `
		ORDER BY id ASC
	`
	rows, err := r.db.Query(query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExecutionEvent
	for rows.Next() {
		var e domain.ExecutionEvent
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.RunnerID, &e.Type, &e.Name, &e.Text, &e.DateTime); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return &out, rows.Err()
}
