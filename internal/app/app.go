// Package app wires the pipeline's dependencies and runs the selected
// operating mode: the chain watcher or the signal worker. Each mode holds a
// Redis single-instance lock for its lifetime so a second replica exits
// instead of double-processing.
package app

import (
	"log/slog"

	"github.com/mirrorbot/mirrorbot/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions registered during wiring, run in reverse order
// on shutdown.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, log *slog.Logger) *App {
	return &App{
		cfg: cfg,
		log: log.With("component", "app"),
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
