package agent

import (
	"context"

	"github.com/ashureev/needle/internal/domain"
)

// Echo replies with the user's own message.
type Echo struct{}

// Generate returns text unchanged.
func (Echo) Generate(_ context.Context, text string, _ []domain.Message) (string, error) {
	return text, nil
}

// Close is a no-op.
func (Echo) Close() error { return nil }
