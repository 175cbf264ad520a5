package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ashureev/needle/internal/config"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions configures Serve.
type ServeOptions struct {
	// ReusePort binds with SO_REUSEPORT so sibling workers can share the port.
	ReusePort bool

	// Ready, when set, receives the bound address once the listener is open.
	Ready func(addr net.Addr)
}

// Listen opens a TCP listener on addr.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	var lc net.ListenConfig
	if reusePort {
		lc.Control = reusePortControl
	}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve builds the application, binds settings.Addr() and serves until ctx
// is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, settings config.Settings, logger *slog.Logger, opts ServeOptions) error {
	if logger == nil {
		logger = slog.Default()
	}

	app, err := NewApp(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("Failed to release resources", "error", closeErr)
		}
	}()

	ln, err := Listen(ctx, settings.Addr(), opts.ReusePort)
	if err != nil {
		return err
	}

	// Websocket sessions are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	srv.RegisterOnShutdown(app.Sessions.CloseAll)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", ln.Addr().String(), "uri", settings.URI(), "environment", settings.Environment)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped successfully")
	return nil
}
