package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Listen, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the hub on ln. It returns after ctx is cancelled and every
// component has shut down, or as soon as the HTTP server fails.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Serve method started.")

	h := a.start(ctx)
	srv := &http.Server{
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("🛰️ Telemetry hub listening.",
			"address", ln.Addr().String(),
			"ingest", a.config.IngestPath,
			"feed", a.config.FeedPath,
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx, srv, h)
	})

	err := g.Wait()
	a.logger.Debug("App.Serve method finished.")
	return err
}

func (a *App) shutdown(ctx context.Context, srv *http.Server, h *hub) error {
	a.logger.Info("🛑 Shutting down telemetry hub...")

	// Hijacked sockets are not tracked by the server; close them first so
	// Shutdown does not wait on long-polling viewers.
	err := h.close(ctx)
	if serr := srv.Shutdown(ctx); serr != nil {
		err = multierr.Append(err, fmt.Errorf("http server shutdown failed: %w", serr))
	}
	if err != nil {
		a.logger.Error("Telemetry hub shutdown incomplete.", "error", err)
		return err
	}
	a.logger.Info("🏁 Telemetry hub stopped.")
	return nil
}
