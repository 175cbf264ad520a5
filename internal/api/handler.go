// Package api provides the JSON HTTP handlers of the needle server.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/conversation"
	"github.com/ashureev/needle/internal/store"
)

const maxBodyBytes = 1 << 20

// Deps holds the collaborators of Handler.
type Deps struct {
	Settings config.Settings
	Reply    conversation.ReplyFunc
	Repo     store.Repository
	Observer conversation.Observer
	Logger   *slog.Logger
}

// Handler provides common handler utilities.
type Handler struct {
	settings config.Settings
	reply    conversation.ReplyFunc
	repo     store.Repository
	observer conversation.Observer
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := d.Repo
	if repo == nil {
		repo = store.Noop{}
	}
	return &Handler{
		settings: d.Settings,
		reply:    d.Reply,
		repo:     repo,
		observer: d.Observer,
		logger:   logger,
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/health", h.Health)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/submit", h.Submit)
			r.Post("/undo", h.Undo)
			r.Post("/retry", h.Retry)
			r.Post("/clear", h.Clear)
			r.Post("/vote", h.Vote)
		})

		r.Route("/feedback", func(r chi.Router) {
			r.Get("/", h.FeedbackTotals)
			r.Get("/{sessionID}", h.SessionFeedback)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// GetConfig returns the resolved settings the browser needs.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"environment":  h.settings.Environment,
		"uri":          h.settings.URI(),
		"uri_callback": h.settings.URICallback(),
		"debug":        h.settings.Debug,
	})
}

// Health reports whether the feedback store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		h.logger.Error("feedback store unreachable", "error", err)
		Error(w, http.StatusServiceUnavailable, "feedback store unreachable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) observe(action string, warning conversation.Warning, err error) {
	if h.observer != nil {
		h.observer.ObserveAction(action, warning, err)
	}
}

func isGenerationError(err error) bool {
	var genErr *conversation.GenerationError
	return errors.As(err, &genErr)
}
