// Package app provides the top-level application lifecycle for the trading
// bot. It wires together all dependencies (exchange clients, stores, audit
// sinks, the risk engine, and the strategy loops) and runs them until the
// context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rruehl/Kalshi-Bot-V5/internal/config"
)

// App is the root application object. It owns the configuration provider,
// logger, and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	provider *config.Provider
	logger   *slog.Logger
	closers  []func()
}

// New creates a new App. configPath is re-read in the background so strategy
// tunables can change without a restart.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *App {
	return &App{
		provider: config.NewProvider(cfg, configPath, logger),
		logger:   logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and runs the bot until the context is cancelled.
// On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	cfg := a.provider.Get()
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", cfg.Mode),
		slog.String("series", cfg.Kalshi.SeriesTicker),
	)

	deps, cleanup, err := Wire(ctx, cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.RunBot(ctx, deps)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
