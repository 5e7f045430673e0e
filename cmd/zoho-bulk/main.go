package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Checker-Finance/zoho-bulk/internal/cli"
	"github.com/Checker-Finance/zoho-bulk/pkg/config"
	"github.com/Checker-Finance/zoho-bulk/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [zoho-bulk]...")

	// --- Wire services ---
	app, err := cli.New(ctx, cfg, logger.L())
	if err != nil {
		logg.Errorw("startup failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	// --- Run the requested command ---
	code := 0
	if err := app.Root().ExecuteContext(ctx); err != nil {
		logg.Errorw("command failed", "error", err)
		code = 1
	}

	// --- Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app.Close(shutdownCtx)
	cancel()
	logger.Sync()
	os.Exit(code)
}
