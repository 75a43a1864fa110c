package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Hub is the resolved configuration of one hub process.
type Hub struct {
	Listen    string
	LogLevel  string
	LogFormat string

	IngestPath      string
	RatePerSec      float64
	Burst           int
	MaxMessageBytes int64
	IdleTimeout     time.Duration

	FeedPath string

	StaleAfter    time.Duration
	PruneInterval time.Duration
	EmptyGrace    time.Duration
}

// Default returns the settings used when nothing else is given.
func Default() Hub {
	return Hub{
		Listen:          ":8000",
		LogLevel:        "info",
		LogFormat:       "json",
		IngestPath:      "/submit",
		RatePerSec:      5,
		Burst:           10,
		MaxMessageBytes: 64 << 10,
		IdleTimeout:     2 * time.Minute,
		FeedPath:        "/socket.io/",
		StaleAfter:      time.Minute,
		PruneInterval:   10 * time.Second,
		EmptyGrace:      30 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (h Hub) Validate() error {
	if h.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	switch h.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", h.LogFormat)
	}
	switch h.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", h.LogLevel)
	}
	for name, path := range map[string]string{"ingest path": h.IngestPath, "feed path": h.FeedPath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s %q must start with '/'", name, path)
		}
	}
	if h.IngestPath == h.FeedPath {
		return fmt.Errorf("ingest and feed cannot share path %q", h.IngestPath)
	}
	if h.RatePerSec < 0 || h.Burst < 0 || h.MaxMessageBytes < 0 {
		return errors.New("ingest limits cannot be negative")
	}
	if h.EmptyGrace < 0 {
		return errors.New("empty_grace cannot be negative")
	}
	if h.StaleAfter > 0 && h.PruneInterval <= 0 {
		return errors.New("prune_interval must be positive when stale_after is set")
	}
	return nil
}
