package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
)

// RunnerRepository registers engine processes and tracks their heartbeats.
type RunnerRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewRunnerRepository(db *sql.DB, clock core.Clock) *RunnerRepository {
	return &RunnerRepository{db: db, clock: clock}
}

func (r *RunnerRepository) Save(e *domain.Runner) (int64, error) {
	started := e.Started
	if started.IsZero() {
		started = r.clock.Now()
	}
	lastActive := e.LastActive
	if lastActive.IsZero() {
		lastActive = started
	}
	vals := []interface{}{e.Name, e.Host, formatDateInDatabase(started), formatDateInDatabase(lastActive)}
	pps := []string{placeholder(1), placeholder(2), placeholder(3), placeholder(4)}
	base := `INSERT INTO runner (name, host, started, last_active) VALUES (` + strings.Join(pps, ", ") + `)`
	if supportsReturning() {
		if err := r.db.QueryRow(base+" RETURNING id", vals...).Scan(&e.ID); err != nil {
			return 0, err
		}
	} else {
		res, err := r.db.Exec(base, vals...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		e.ID = id
	}
	e.Started = started
	e.LastActive = lastActive
	return e.ID, nil
}

// UpdateLastActive sets last_active for the runner id to the provided timestamp.
func (r *RunnerRepository) UpdateLastActive(id int64, ts time.Time) error {
	query := `UPDATE runner SET last_active = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	_, err := r.db.Exec(query, formatDateInDatabase(ts), id)
	return err
}

func (r *RunnerRepository) GetRunnersByLastActive(limit int) ([]*domain.Runner, error) {
	query := `
		SELECT id, name, host, started, last_active
		FROM runner
		ORDER BY last_active DESC
		LIMIT ` + placeholder(1) + `
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Runner
	for rows.Next() {
		var e domain.Runner
		if err := rows.Scan(&e.ID, &e.Name, &e.Host, &e.Started, &e.LastActive); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
