package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/needle/internal/api"
	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/identity"
	"github.com/ashureev/needle/internal/metrics"
	"github.com/ashureev/needle/internal/middleware"
)

// RouterDeps holds the handlers mounted by NewRouter.
type RouterDeps struct {
	Settings config.Settings
	API      *api.Handler
	Socket   http.Handler
	Web      http.Handler
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := []string{d.Settings.URI()}
	if d.Settings.IsDevelopment() {
		allowedOrigins = []string{"*"}
	}

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	r.Use(middleware.CORS(allowedOrigins))

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(d.Settings.IsDevelopment()))

		if d.API != nil {
			d.API.RegisterRoutes(r)
		}
		if d.Socket != nil {
			r.Method(http.MethodGet, "/ws/chat", d.Socket)
		}
		if d.Web != nil {
			r.Method(http.MethodGet, "/", d.Web)
			r.Method(http.MethodGet, "/static/*", d.Web)
		}
	})

	return r
}
