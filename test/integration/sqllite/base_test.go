package sqllite

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"testing"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/recordflow/recordflow/internal/migrations"
)

var fileSeq int32

// runTestWithSetup gives each test its own migrated SQLite database and the
// environment the engine reads its settings from.
func runTestWithSetup(t *testing.T, testFunc func(t *testing.T, db *sql.DB)) {
	t.Helper()
	filename := fmt.Sprintf("recordflow-test-%d.db", atomic.AddInt32(&fileSeq, 1))
	defer os.Remove(filename)

	os.Setenv("RFLOW_DATABASE_TYPE", "SQLLITE")
	os.Setenv("RFLOW_DATABASE_SQLLITE_FILE_NAME", filename)
	os.Setenv("RFLOW_TASK_POLL_INTERVAL", "10ms")
	os.Setenv("RFLOW_ENGINE_WORKER_COUNT", "2")

	if err := migrateSqlLite(filename); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	testFunc(t, db)
}

func migrateSqlLite(filename string) error {
	sub, err := fs.Sub(migrations.FS, "sqllite3")
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+filename)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
