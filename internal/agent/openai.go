package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/ashureev/needle/internal/domain"
)

var errNoChoices = errors.New("completion returned no choices")

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
}

// OpenAI generates replies with the chat completions API.
type OpenAI struct {
	api    *openai.Client
	model  string
	system string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger.Info("Using OpenAI reply backend", "model", cfg.Model, "base_url", clientCfg.BaseURL)

	return &OpenAI{
		api:    openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		system: cfg.SystemPrompt,
		logger: logger,
	}, nil
}

// Generate sends the history followed by text and returns the first choice.
func (o *OpenAI) Generate(ctx context.Context, text string, history []domain.Message) (string, error) {
	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.messages(text, history),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	o.logger.Debug("Chat completion finished",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) messages(text string, history []domain.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if o.system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (o *OpenAI) Close() error { return nil }
