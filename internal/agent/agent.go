// Package agent implements the reply backends that produce assistant
// messages for the chat.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/conversation"
	"github.com/ashureev/needle/internal/domain"
)

// Generator produces the assistant reply to a user message given the
// conversation so far.
type Generator interface {
	Generate(ctx context.Context, text string, history []domain.Message) (string, error)

	// Close releases resources.
	Close() error
}

// New builds the generator selected by cfg.Backend.
func New(ctx context.Context, cfg config.ReplyConfig, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", config.BackendEcho:
		logger.Info("Using echo reply backend")
		return Echo{}, nil
	case config.BackendOpenAI:
		o, err := NewOpenAI(OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			SystemPrompt: cfg.SystemPrompt,
		}, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	case config.BackendGrpc:
		gc := DefaultGrpcClientConfig()
		gc.Address = cfg.GrpcAddr
		if cfg.GrpcConnectTimeout > 0 {
			gc.ConnectTimeout = cfg.GrpcConnectTimeout
		}
		c, err := NewGrpcClient(ctx, gc, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown reply backend %q", cfg.Backend)
	}
}

// Reply adapts g to a conversation.ReplyFunc. Each call is bounded by
// timeout when it is positive.
func Reply(g Generator, timeout time.Duration) conversation.ReplyFunc {
	return func(ctx context.Context, text string, history []domain.Message) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return g.Generate(ctx, text, history)
	}
}
