// derive_worker processes a single derivative task: it reads one CBOR-encoded
// task from stdin, writes the derivatives and reports a CBOR response on stdout.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gallery_planner/internal/derive"
	"gallery_planner/internal/lib/logger/sl"
)

func main() {
	// stdout занят протоколом, поэтому логи идут в stderr
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := derive.Serve(ctx, os.Stdin, os.Stdout, derive.NewProcessor()); err != nil {
		log.Error("derive worker failed", sl.Err(err))
		stop()
		os.Exit(1)
	}
}
