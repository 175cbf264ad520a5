package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/needle/internal/conversation"
	"github.com/ashureev/needle/internal/identity"
)

type chatRequest struct {
	History conversation.Log `json:"history"`
	Message string           `json:"message,omitempty"`
	Index   int              `json:"index,omitempty"`
	Liked   bool             `json:"liked,omitempty"`
}

type chatResponse struct {
	History conversation.Log     `json:"history"`
	Warning conversation.Warning `json:"warning,omitempty"`
}

func (req chatRequest) validate() error {
	for i, m := range req.History {
		if !m.Role.Valid() {
			return fmt.Errorf("history[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}

func (h *Handler) readChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := req.validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func writeChat(w http.ResponseWriter, log conversation.Log, warning conversation.Warning) {
	if log == nil {
		log = conversation.Log{}
	}
	JSON(w, http.StatusOK, chatResponse{History: log, Warning: warning})
}

func (h *Handler) generationFailed(w http.ResponseWriter, action string, err error) {
	h.logger.Warn("reply generation failed", "action", action, "error", err)
	if isGenerationError(err) {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	Error(w, http.StatusInternalServerError, "internal error")
}

// Submit appends a user message and its reply to the given history.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readChat(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.observe(conversation.ActionSubmit, "", conversation.ErrEmptyMessage)
		Error(w, http.StatusBadRequest, conversation.ErrEmptyMessage.Error())
		return
	}

	next, err := conversation.AppendUserTurn(r.Context(), req.History, req.Message, h.reply)
	h.observe(conversation.ActionSubmit, "", err)
	if err != nil {
		h.generationFailed(w, conversation.ActionSubmit, err)
		return
	}
	writeChat(w, next, "")
}

// Undo drops the last turn of the given history.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readChat(w, r)
	if !ok {
		return
	}
	next, warning := conversation.Undo(req.History)
	h.observe(conversation.ActionUndo, warning, nil)
	writeChat(w, next, warning)
}

// Retry regenerates the last answer of the given history.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readChat(w, r)
	if !ok {
		return
	}
	next, warning, err := conversation.Retry(r.Context(), req.History, h.reply)
	h.observe(conversation.ActionRetry, warning, err)
	if err != nil {
		h.generationFailed(w, conversation.ActionRetry, err)
		return
	}
	writeChat(w, next, warning)
}

// Clear empties the given history.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readChat(w, r)
	if !ok {
		return
	}
	next, warning := conversation.Clear(req.History)
	h.observe(conversation.ActionClear, warning, nil)
	writeChat(w, next, warning)
}

// Vote records a like or dislike on an assistant message of the given
// history. The history is returned unchanged.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readChat(w, r)
	if !ok {
		return
	}

	fb, err := conversation.Vote(req.History, req.Index, req.Liked)
	h.observe(conversation.ActionVote, "", err)
	if err != nil {
		if errors.Is(err, conversation.ErrVoteOutOfRange) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	fb.UserID = identity.UserIDFromContext(r.Context())
	fb.SessionID = identity.SessionIDFromContext(r.Context())
	fb.CreatedAt = time.Now()

	if h.observer != nil {
		h.observer.ObserveVote(req.Liked)
	}
	if err := h.repo.RecordVote(r.Context(), fb); err != nil {
		h.logger.Error("failed to record vote", "index", req.Index, "error", err)
		Error(w, http.StatusInternalServerError, "failed to record vote")
		return
	}

	h.logger.Info("vote recorded", "index", req.Index, "liked", req.Liked, "session_id", fb.SessionID)
	writeChat(w, req.History, "")
}
