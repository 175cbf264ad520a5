package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/needle/internal/domain"
)

// FeedbackTotals returns the number of likes and dislikes recorded so far.
func (h *Handler) FeedbackTotals(w http.ResponseWriter, r *http.Request) {
	likes, dislikes, err := h.repo.CountVotes(r.Context())
	if err != nil {
		h.logger.Error("failed to count votes", "error", err)
		Error(w, http.StatusInternalServerError, "failed to count votes")
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"likes": likes, "dislikes": dislikes})
}

// SessionFeedback lists the votes of one session.
func (h *Handler) SessionFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	votes, err := h.repo.ListVotes(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list votes", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list votes")
		return
	}
	if votes == nil {
		votes = []domain.Feedback{}
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "votes": votes})
}
