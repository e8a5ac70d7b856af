package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/recordflow/recordflow/internal/activities"
	"github.com/recordflow/recordflow/pkg/recordflow"
)

func main() {
	recordflow.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := recordflow.Options{
		// Hosts plug in their record store and notifier here; the defaults
		// log instead of mutating anything.
		Register: func(r *activities.Registry) error {
			return nil
		},
	}
	if err := recordflow.Start(ctx, nil, opts); err != nil {
		slog.Error("Engine exited with error", "error", err)
	}
}
