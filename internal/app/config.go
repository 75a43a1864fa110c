package app

import (
	"fmt"

	"github.com/specialistvlad/telemetryhub/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	config.Hub
}

// NewConfig validates hub and wraps it for NewApp.
func NewConfig(hub config.Hub) (*Config, error) {
	if err := hub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Config{Hub: hub}, nil
}
