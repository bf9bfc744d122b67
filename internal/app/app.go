package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spreadwatch/internal/config"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/monitor"
	"spreadwatch/internal/scheduler"
	"spreadwatch/internal/server"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) logWarnings() {
	for _, w := range a.Config.Warnings() {
		a.Logger.Warn().Str("check", "symbol_mismatch").Msg(w)
	}
}

// Run executes the long-running monitoring service: one scheduler per
// enabled instrument plus the websocket hub and HTTP server.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.logWarnings()

	rt, err := a.newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.close()

	monitors, err := a.newMonitors(rt)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if rt.hub != nil {
		g.Go(func() error { return rt.hub.Run(gctx) })
	}

	if a.Config.HTTP.Enabled {
		deps := server.Deps{
			Board:    rt.board,
			Gatherer: rt.registry,
			Audio:    rt.audio,
			Statuses: statusesOf(monitors),
		}
		if rt.hub != nil {
			deps.Hub = rt.hub
		}
		srv := server.New(server.Config{
			Addr:            a.Config.HTTP.Addr,
			ShutdownTimeout: a.Config.HTTP.ShutdownTimeout,
		}, deps, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	enabled := a.Config.Enabled()
	for i, m := range monitors {
		m := m
		inst := enabled[i]
		name := m.Name()
		sched := scheduler.New(scheduler.Options{
			Name:         name,
			Interval:     inst.Period,
			AlignToStart: inst.AlignToStart,
			StartupDelay: a.Config.Scheduler.StartupDelay,
			Immediate:    a.Config.Scheduler.Immediate,
			OnSkip: func(_ time.Time) {
				rt.metrics.Tick(name, metrics.ResultSkipped)
			},
			OnPanic: func(_ time.Time, _ any) {
				rt.metrics.Tick(name, metrics.ResultPanic)
			},
		}, a.Logger)
		g.Go(func() error { return sched.Run(gctx, m.Tick) })
	}

	a.Logger.Info().Int("instruments", len(monitors)).Msg("starting spread monitors")
	err = g.Wait()
	for _, m := range monitors {
		m.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("spread monitors stopped")
	return nil
}

func statusesOf(monitors []*monitor.SpreadMonitor) func() []monitor.Status {
	return func() []monitor.Status {
		out := make([]monitor.Status, 0, len(monitors))
		for _, m := range monitors {
			out = append(out, m.Status())
		}
		return out
	}
}
