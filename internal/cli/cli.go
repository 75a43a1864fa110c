package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/telemetryhub/internal/app"
	"github.com/specialistvlad/telemetryhub/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
//
// Settings are layered: built-in defaults, then the -config file, then any
// flag given explicitly on the command line.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	defaults := config.Default()

	flagSet := flag.NewFlagSet("telemetryhub", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
TelemetryHub - A live aggregation hub for blockchain node telemetry.

Usage:
  telemetryhub [options]

Producers submit over WebSocket at the ingest path; viewers subscribe to
chains over socket.io at the feed path.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to an HCL config file.")
	listenFlag := flagSet.String("listen", defaults.Listen, "Address the HTTP server listens on.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	staleFlag := flagSet.Duration("stale-after", defaults.StaleAfter, "Drop nodes that report nothing for this long. 0 disables pruning.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}
	slog.Debug("Arguments parsed successfully.")

	hub := defaults
	if *configFlag != "" {
		loaded, err := config.Load(context.Background(), *configFlag, hub)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		hub = loaded
		slog.Debug("Config file applied.", "path", *configFlag)
	}

	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			hub.Listen = *listenFlag
		case "log-format":
			hub.LogFormat = *logFormatFlag
		case "log-level":
			hub.LogLevel = *logLevelFlag
		case "stale-after":
			hub.StaleAfter = *staleFlag
		}
	})
	hub.LogFormat = strings.ToLower(hub.LogFormat)
	hub.LogLevel = strings.ToLower(hub.LogLevel)

	cfg, err := app.NewConfig(hub)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "listen", cfg.Listen)
	return cfg, false, nil
}
