// Package server wires the needle HTTP server together and runs it, either
// in-process or as a group of worker processes sharing one port.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/ashureev/needle/internal/agent"
	"github.com/ashureev/needle/internal/api"
	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/metrics"
	"github.com/ashureev/needle/internal/socket"
	"github.com/ashureev/needle/internal/store"
	"github.com/ashureev/needle/web"
)

// App holds the long-lived dependencies of one server process.
type App struct {
	Handler  http.Handler
	Sessions *socket.SessionManager
	Metrics  *metrics.Metrics

	repo      store.Repository
	generator agent.Generator
	logger    *slog.Logger
}

// NewApp opens the feedback store, connects the reply backend and builds
// the router.
func NewApp(ctx context.Context, settings config.Settings, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := openStore(ctx, settings.Store, logger)
	if err != nil {
		return nil, err
	}

	generator, err := agent.New(ctx, settings.Reply, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize reply backend: %w", err)
	}

	page, err := web.Handler(web.PageOptions{
		Title:         "Chatbot",
		WebsocketPath: "/ws/chat",
		Debug:         settings.Debug,
	})
	if err != nil {
		_ = generator.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("initialize web page: %w", err)
	}

	m := metrics.New()
	sessions := socket.NewSessionManager()
	reply := agent.Reply(generator, settings.Reply.Timeout)

	apiHandler := api.NewHandler(api.Deps{
		Settings: settings,
		Reply:    reply,
		Repo:     repo,
		Observer: m,
		Logger:   logger,
	})
	wsHandler := socket.NewHandler(socket.HandlerConfig{
		Sessions:      sessions,
		Reply:         reply,
		Feedback:      repo,
		Observer:      m,
		Gauge:         m,
		AllowedOrigin: settings.URI(),
		IsDev:         settings.IsDevelopment(),
		Logger:        logger,
	})

	router := NewRouter(RouterDeps{
		Settings: settings,
		API:      apiHandler,
		Socket:   wsHandler,
		Web:      page,
		Metrics:  m,
		Logger:   logger,
	})

	return &App{
		Handler:   router,
		Sessions:  sessions,
		Metrics:   m,
		repo:      repo,
		generator: generator,
		logger:    logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Repository, error) {
	if !cfg.Enabled {
		logger.Info("Feedback store disabled")
		return store.Noop{}, nil
	}

	repo, err := store.NewSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	logger.Info("Database connected", "path", cfg.Path)
	return repo, nil
}

// Close closes live sessions and releases the backend and the store.
func (a *App) Close() error {
	a.Sessions.CloseAll()

	var result *multierror.Error
	if err := a.generator.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close reply backend: %w", err))
	}
	if err := a.repo.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close repository: %w", err))
	}
	return result.ErrorOrNil()
}
