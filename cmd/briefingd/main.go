package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/samvad-hq/samvad-briefing/internal/app"
	"github.com/samvad-hq/samvad-briefing/internal/config"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "briefingd start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("briefingd starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize briefingd", "error", err.Error())
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.ErrorObj("shutdown failed", "error", err.Error())
		}
	}()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("briefingd run: %w", err)
	}
	return nil
}
