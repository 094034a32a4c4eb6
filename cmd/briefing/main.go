package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap/zapcore"

	"github.com/samvad-hq/samvad-briefing/internal/app"
	"github.com/samvad-hq/samvad-briefing/internal/config"
	"github.com/samvad-hq/samvad-briefing/internal/logger"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openApp, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp builds the full runtime. Logs go to stderr so stdout stays parseable.
func openApp(ctx context.Context) (service, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.Wrap(logger.New(cfg.LogLevel, zapcore.Lock(os.Stderr)))

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a.Orchestrator(), a, nil
}
