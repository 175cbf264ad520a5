// Package store persists chat feedback.
package store

import (
	"context"

	"github.com/ashureev/needle/internal/domain"
)

// Repository defines the interface for persisting votes on assistant messages.
type Repository interface {
	// RecordVote stores one like/dislike event.
	RecordVote(ctx context.Context, fb domain.Feedback) error

	// ListVotes returns the votes of a session, oldest first.
	ListVotes(ctx context.Context, sessionID string) ([]domain.Feedback, error)

	// CountVotes returns the number of likes and dislikes across all sessions.
	CountVotes(ctx context.Context) (likes int64, dislikes int64, err error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Noop is a Repository that discards everything. It is used when the
// feedback store is disabled.
type Noop struct{}

func (Noop) RecordVote(context.Context, domain.Feedback) error { return nil }

func (Noop) ListVotes(context.Context, string) ([]domain.Feedback, error) { return nil, nil }

func (Noop) CountVotes(context.Context) (int64, int64, error) { return 0, 0, nil }

func (Noop) Ping(context.Context) error { return nil }

func (Noop) Close() error { return nil }
