package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/listwatch/app"
	"github.com/use-agent/listwatch/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "listwatch: load config:", err)
		return 1
	}

	// ── 2. Initialise structured logging ────────────────────────────
	runID := uuid.NewString()
	logger := app.NewLogger(cfg.Log, os.Stdout).With("run_id", runID)
	logger.Info("listwatch starting",
		"mode", cfg.Fetch.Mode,
		"store", cfg.Store.Path,
		"imageWorkers", cfg.Fetch.ImageWorkers,
	)

	// ── 3. Cancel the run on SIGINT/SIGTERM ─────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 4. Crawl, reconcile, notify ─────────────────────────────────
	start := time.Now()
	err = app.Run(ctx, cfg, runID, logger)
	code := app.ExitCode(err)
	if err != nil {
		logger.Error("listwatch failed", "error", err, "exitCode", code, "elapsed", time.Since(start))
		return code
	}
	logger.Info("listwatch finished", "elapsed", time.Since(start))
	return code
}
