package domain

import "time"

// Feedback is a like/dislike vote on one assistant message, together with
// the user prompt that produced it.
type Feedback struct {
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	MessageIndex int       `json:"message_index"`
	Liked        bool      `json:"liked"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	CreatedAt    time.Time `json:"created_at"`
}
