package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/needle/internal/domain"
)

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCompletionServer(t *testing.T, got *completionRequest, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	var got completionRequest
	srv := newCompletionServer(t, &got, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`)

	o, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", SystemPrompt: "be brief"}, nil)
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	reply, err := o.Generate(context.Background(), "hello", []domain.Message{
		domain.UserMessage("earlier"),
		domain.AssistantMessage("answer"),
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if got.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Fatalf("message %d: expected role %s, got %s", i, role, got.Messages[i].Role)
		}
	}
	if got.Messages[3].Content != "hello" {
		t.Fatalf("expected last message to be the user text, got %q", got.Messages[3].Content)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	t.Parallel()

	var got completionRequest
	srv := newCompletionServer(t, &got, `{"id": "x", "object": "chat.completion", "choices": []}`)

	o, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Generate(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected error when no choices are returned")
	}
}
