package app

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-briefing/internal/api"
	"github.com/samvad-hq/samvad-briefing/internal/briefing"
)

// Run serves the API (when enabled) and generates today's briefing on every
// tick until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.orch == nil {
		return fmt.Errorf("app is not initialized")
	}

	apiErr := make(chan error, 1)
	if a.cfg.APIEnabled {
		srv := api.NewServer(a.orch, a.log)
		go func() { apiErr <- srv.Run(ctx, a.cfg.HTTPAddr) }()
	}

	a.log.InfoObj("scheduler starting", "scheduler_state", map[string]any{
		"sources":          a.cfg.DefaultSources,
		"publishers_count": a.fanout.Size(),
		"interval":         a.cfg.GenerateInterval.String(),
		"api_enabled":      a.cfg.APIEnabled,
	})

	if _, err := a.RunOnce(ctx); err != nil {
		a.log.ErrorObj("initial generation failed", "error", err.Error())
	}

	ticker := time.NewTicker(a.cfg.GenerateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.InfoObj("scheduler exiting", "reason", ctx.Err().Error())
			if a.cfg.APIEnabled {
				return <-apiErr
			}
			return nil
		case err := <-apiErr:
			return fmt.Errorf("api server: %w", err)
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.log.ErrorObj("scheduled generation failed", "error", err.Error())
			}
		}
	}
}

// RunOnce generates today's briefing with the configured defaults. A briefing
// already cached for today short-circuits the run.
func (a *App) RunOnce(ctx context.Context) (briefing.Result, error) {
	start := time.Now()
	res, err := a.orch.Generate(ctx, briefing.Request{UseCache: true, Persist: true})
	if err != nil {
		return res, err
	}
	a.log.InfoObj("generation finished", "generation_meta", map[string]any{
		"status":      res.Status,
		"date":        res.Report.Date,
		"articles":    res.Briefing.TotalCount,
		"elapsed_ms":  time.Since(start).Milliseconds(),
		"delivered":   res.Report.Delivered,
		"fetch_fails": res.Report.FetchFailures(),
	})
	return res, nil
}
