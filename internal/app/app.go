package app

import (
	"io"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
)

// App encapsulates the hub's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	metrics *metrics.Hub
	clock   clock.Clock
}

// NewApp is the constructor for the hub. Each App gets its own logger and
// metrics registry, so several can run in one process.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		metrics: metrics.New(),
		clock:   clock.New(),
	}
}

// Metrics returns the application's collectors. This is primarily for testing.
func (a *App) Metrics() *metrics.Hub {
	return a.metrics
}
