package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/needle/internal/conversation"
	"github.com/ashureev/needle/internal/identity"
)

const writeTimeout = 10 * time.Second

// Event types sent by the browser.
const (
	EventSubmit  = "submit"
	EventUndo    = "undo"
	EventRetry   = "retry"
	EventClear   = "clear"
	EventVote    = "vote"
	EventHistory = "history"
	EventPing    = "ping"
)

// Event is one UI action.
type Event struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Index int    `json:"index,omitempty"`
	Liked bool   `json:"liked,omitempty"`
}

type historyEvent struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Messages  conversation.Log     `json:"messages"`
	Warning   conversation.Warning `json:"warning,omitempty"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// SessionGauge tracks the number of open sessions.
type SessionGauge interface {
	SessionOpened()
	SessionClosed()
}

// HandlerConfig holds the collaborators of Handler.
type HandlerConfig struct {
	Sessions      *SessionManager
	Reply         conversation.ReplyFunc
	Feedback      conversation.FeedbackSink
	Observer      conversation.Observer
	Gauge         SessionGauge
	AllowedOrigin string
	IsDev         bool
	Logger        *slog.Logger
}

// Handler handles websocket chat sessions.
type Handler struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler creates a new websocket handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionManager()
	}
	return &Handler{cfg: cfg, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	logger := h.logger.With("user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	session := conversation.NewSession(conversation.SessionConfig{
		ID:       uuid.NewString(),
		UserID:   userID,
		Reply:    h.cfg.Reply,
		Feedback: h.cfg.Feedback,
		Observer: h.cfg.Observer,
		Logger:   h.logger,
	})
	logger = logger.With("session_id", session.ID())

	h.cfg.Sessions.Register(userID, session, ws)
	defer h.cfg.Sessions.Unregister(userID, session.ID(), ws)
	if h.cfg.Gauge != nil {
		h.cfg.Gauge.SessionOpened()
		defer h.cfg.Gauge.SessionClosed()
	}

	ctx := r.Context()
	if err := h.writeHistory(ctx, ws, session.ID(), conversation.Outcome{Messages: session.Messages()}); err != nil {
		logger.Debug("Failed to send initial history", "error", err)
		return
	}

	h.readLoop(ctx, ws, session, logger)
	logger.Info("Chat session ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, session *conversation.Session, logger *slog.Logger) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				logger.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			if err := h.writeError(ctx, ws, "invalid event"); err != nil {
				return
			}
			continue
		}

		if err := h.dispatch(ctx, ws, session, ev); err != nil {
			logger.Debug("Failed to write event", "type", ev.Type, "error", err)
			return
		}
	}
}

// dispatch applies one event and writes the answer. Only write errors are
// returned; operation errors are reported to the browser.
func (h *Handler) dispatch(ctx context.Context, ws *websocket.Conn, session *conversation.Session, ev Event) error {
	var (
		out conversation.Outcome
		err error
	)

	switch ev.Type {
	case EventSubmit:
		out, err = session.Submit(ctx, ev.Text)
	case EventUndo:
		out = session.Undo()
	case EventRetry:
		out, err = session.Retry(ctx)
	case EventClear:
		out = session.Clear()
	case EventVote:
		out = session.Vote(ctx, ev.Index, ev.Liked)
	case EventHistory:
		out = conversation.Outcome{Messages: session.Messages()}
	case EventPing:
		return h.write(ctx, ws, map[string]string{"type": "pong"})
	default:
		return h.writeError(ctx, ws, "unknown event type "+ev.Type)
	}

	if err != nil {
		var genErr *conversation.GenerationError
		if errors.Is(err, conversation.ErrEmptyMessage) || errors.As(err, &genErr) {
			return h.writeError(ctx, ws, err.Error())
		}
		return h.writeError(ctx, ws, "internal error")
	}
	return h.writeHistory(ctx, ws, session.ID(), out)
}

func (h *Handler) writeHistory(ctx context.Context, ws *websocket.Conn, sessionID string, out conversation.Outcome) error {
	messages := out.Messages
	if messages == nil {
		messages = conversation.Log{}
	}
	return h.write(ctx, ws, historyEvent{
		Type:      EventHistory,
		SessionID: sessionID,
		Messages:  messages,
		Warning:   out.Warning,
	})
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, msg string) error {
	return h.write(ctx, ws, errorEvent{Type: "error", Error: msg})
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
