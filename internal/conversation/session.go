package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/needle/internal/domain"
)

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Action names reported to an Observer.
const (
	ActionSubmit = "submit"
	ActionUndo   = "undo"
	ActionRetry  = "retry"
	ActionClear  = "clear"
	ActionVote   = "vote"
)

// FeedbackSink receives vote events.
type FeedbackSink interface {
	RecordVote(ctx context.Context, fb domain.Feedback) error
}

// Observer is notified after every session operation.
type Observer interface {
	ObserveAction(action string, warning Warning, err error)
	ObserveVote(liked bool)
}

// Outcome is the state of the log after an operation plus an optional warning.
type Outcome struct {
	Messages Log     `json:"messages"`
	Warning  Warning `json:"warning,omitempty"`
}

// SessionConfig holds the collaborators of a Session.
type SessionConfig struct {
	ID       string
	UserID   string
	Reply    ReplyFunc
	Feedback FeedbackSink
	Observer Observer
	Logger   *slog.Logger
}

// Session owns the conversation log of one UI session. Operations are
// serialized so a slow reply never interleaves with a button press.
type Session struct {
	id       string
	userID   string
	reply    ReplyFunc
	feedback FeedbackSink
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu  sync.Mutex
	log Log
}

// NewSession creates a session with an empty log.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:       cfg.ID,
		userID:   cfg.UserID,
		reply:    cfg.Reply,
		feedback: cfg.Feedback,
		observer: cfg.Observer,
		logger:   logger.With("session_id", cfg.ID, "user_id", cfg.UserID),
		now:      time.Now,
		log:      Log{},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Messages returns the current log.
func (s *Session) Messages() Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// Submit appends a new turn for text.
func (s *Session) Submit(ctx context.Context, text string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		s.observe(ActionSubmit, "", ErrEmptyMessage)
		return Outcome{Messages: s.log}, ErrEmptyMessage
	}

	next, err := AppendUserTurn(ctx, s.log, text, s.reply)
	s.observe(ActionSubmit, "", err)
	if err != nil {
		s.logger.Warn("reply generation failed", "action", ActionSubmit, "error", err)
		return Outcome{Messages: s.log}, err
	}
	s.log = next
	s.logger.Debug("turn appended", "messages", len(s.log))
	return Outcome{Messages: s.log}, nil
}

// Undo drops the last turn.
func (s *Session) Undo() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, warning := Undo(s.log)
	s.log = next
	s.observe(ActionUndo, warning, nil)
	return Outcome{Messages: s.log, Warning: warning}
}

// Retry regenerates the last answer.
func (s *Session) Retry(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, warning, err := Retry(ctx, s.log, s.reply)
	s.observe(ActionRetry, warning, err)
	if err != nil {
		s.logger.Warn("reply generation failed", "action", ActionRetry, "error", err)
		return Outcome{Messages: s.log}, err
	}
	s.log = next
	return Outcome{Messages: s.log, Warning: warning}, nil
}

// Clear empties the log.
func (s *Session) Clear() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, warning := Clear(s.log)
	s.log = next
	s.observe(ActionClear, warning, nil)
	return Outcome{Messages: s.log, Warning: warning}
}

// Vote records a like or dislike on the message at index. Invalid indexes
// come from UI event data and are logged, never returned.
func (s *Session) Vote(ctx context.Context, index int, liked bool) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	fb, err := Vote(s.log, index, liked)
	s.observe(ActionVote, "", err)
	if err != nil {
		s.logger.Warn("ignoring vote", "index", index, "error", err)
		return Outcome{Messages: s.log}
	}

	fb.UserID = s.userID
	fb.SessionID = s.id
	fb.CreatedAt = s.now()

	if liked {
		s.logger.Info("response upvoted", "index", index, "response_length", len(fb.Response))
	} else {
		s.logger.Info("response downvoted", "index", index, "response_length", len(fb.Response))
	}
	if s.observer != nil {
		s.observer.ObserveVote(liked)
	}
	if s.feedback != nil {
		if err := s.feedback.RecordVote(ctx, fb); err != nil {
			s.logger.Error("failed to record vote", "index", index, "error", err)
		}
	}
	return Outcome{Messages: s.log}
}

func (s *Session) observe(action string, warning Warning, err error) {
	if s.observer != nil {
		s.observer.ObserveAction(action, warning, err)
	}
}
