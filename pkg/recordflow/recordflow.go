package recordflow

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/recordflow/recordflow/internal/activities"
	"github.com/recordflow/recordflow/internal/config"
	"github.com/recordflow/recordflow/internal/controllers"
	"github.com/recordflow/recordflow/internal/dispatcher"
	"github.com/recordflow/recordflow/internal/engine"
	"github.com/recordflow/recordflow/internal/migrations"
	"github.com/recordflow/recordflow/internal/repository"
	"github.com/recordflow/recordflow/internal/util"
	"github.com/recordflow/recordflow/pkg/recordflow/core"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lmittmann/tint"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options carries the host-application hooks the built-in activities call
// out through. Every field may be nil; the engine falls back to logging
// implementations.
type Options struct {
	Records  activities.RecordStore
	Notifier activities.Notifier

	// Register is called with the activity registry before the engine
	// starts, so hosts can add their own activities.
	Register func(r *activities.Registry) error
}

// Start boots the workflow engine, the change-event dispatcher and the HTTP
// API. It blocks until ctx is cancelled or the HTTP server stops.
func Start(ctx context.Context, mux *http.ServeMux, opts Options) error {
	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	if databaseType != config.DATABASE_TYPE_POSTGRES && databaseType != config.DATABASE_TYPE_MYSQL && databaseType != config.DATABASE_TYPE_SQLLITE {
		panic("RFLOW_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE")
	}

	var db *sql.DB
	if databaseType == config.DATABASE_TYPE_POSTGRES {
		db = setupPostgresDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_SQLLITE {
		db = setupSqlLiteDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_MYSQL {
		db = setupMysqlDatabase()
		defer db.Close()
	}

	clock := core.NewRealClock()
	definitionRepo := repository.NewWorkflowDefinitionRepository(db, clock)
	executionRepo := repository.NewExecutionRepository(db, clock)
	eventRepo := repository.NewExecutionEventRepository(db, clock)
	taskRepo := repository.NewUserTaskRepository(db, clock)
	runnerRepo := repository.NewRunnerRepository(db, clock)

	registry := activities.NewRegistry()
	notifier := opts.Notifier
	if notifier == nil {
		notifier = activities.LogNotifier{}
	}
	audit := activities.JournalAuditSink{Events: eventRepo}
	if err := activities.RegisterBuiltins(registry, opts.Records, notifier, audit); err != nil {
		return err
	}
	if opts.Register != nil {
		if err := opts.Register(registry); err != nil {
			return err
		}
	}
	slog.Info("Activity registry ready", "activities", registry.Names())

	manager := engine.NewExecutionManager(definitionRepo, executionRepo, eventRepo, taskRepo, runnerRepo, registry, clock)
	go manager.Start(ctx)

	// Change capture rides on Postgres NOTIFY; other dialects run API-only.
	var disp *dispatcher.Dispatcher
	if databaseType == config.DATABASE_TYPE_POSTGRES {
		disp = dispatcher.New(manager, config.GetSystemSettingString(config.DATABASE_URL))
		if err := disp.Start(ctx); err != nil {
			return err
		}
		defer disp.Stop()
	} else {
		slog.Warn("Change-event dispatcher disabled", "database_type", databaseType)
	}

	if mux == nil {
		mux = http.NewServeMux()
	}
	registerHealthRoute(mux, db, disp)
	definitionsController := controllers.NewDefinitionsController(definitionRepo)
	definitionsController.RegisterRoutes(mux)
	executionsController := controllers.NewExecutionsController(executionRepo, eventRepo, manager)
	executionsController.RegisterRoutes(mux)
	tasksController := controllers.NewTasksController(taskRepo)
	tasksController.RegisterRoutes(mux)

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting HTTP server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("HTTP server failed", "error", err)
		return err
	}
	return nil
}

func setupPostgresDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("RFLOW_DATABASE_URL must be set when using the POSTGRES database type")
	}
	slog.Info("Using Postgres database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening Postgres database")
	dbPostgres, err := sql.Open("postgres", dbURL)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbPostgres
}

func setupSqlLiteDatabase() *sql.DB {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		panic("RFLOW_DATABASE_SQLLITE_FILE_NAME must be set")
	}
	dbURL := "sqlite3://" + fileName
	slog.Info("Using SQLite database", "file", fileName)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("sqllite3", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening SQLite database")
	dbSqlLite, err := sql.Open("sqlite3", fileName)
	if err != nil {
		log.Fatalf("Failed to open SQLite DB: %v", err)
	}
	if err := dbSqlLite.Ping(); err != nil {
		log.Fatalf("Failed to ping SQLite DB: %v", err)
	}
	return dbSqlLite
}

func setupMysqlDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("RFLOW_DATABASE_URL must be set when using the MYSQL database type")
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		panic("RFLOW_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	if !strings.HasPrefix(dbURL, "mysql://") {
		panic("RFLOW_DATABASE_URL must start with 'mysql://' for MySQL")
	}

	slog.Info("Using MySQL database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("mysql", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening MySQL database")
	dbMysql, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbMysql
}

type healthResponse struct {
	Status     string `json:"status"`
	Dispatcher string `json:"dispatcher"`
}

func registerHealthRoute(mux *http.ServeMux, db *sql.DB, disp *dispatcher.Dispatcher) {
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Dispatcher: "disabled"}
		if disp != nil {
			resp.Dispatcher = disp.Describe()
		}
		status := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			resp.Status = "database unreachable"
			status = http.StatusServiceUnavailable
		}
		util.WriteJSONResponse(w, status, resp)
	})
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func SetupLogger() {
	w := os.Stderr
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
