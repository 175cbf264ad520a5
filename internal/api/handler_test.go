//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/conversation"
	"github.com/ashureev/needle/internal/domain"
	"github.com/ashureev/needle/internal/identity"
)

type fakeRepo struct {
	mu      sync.Mutex
	votes   []domain.Feedback
	pingErr error
}

func (f *fakeRepo) RecordVote(_ context.Context, fb domain.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, fb)
	return nil
}

func (f *fakeRepo) ListVotes(_ context.Context, sessionID string) ([]domain.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Feedback
	for _, v := range f.votes {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountVotes(context.Context) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var likes, dislikes int64
	for _, v := range f.votes {
		if v.Liked {
			likes++
		} else {
			dislikes++
		}
	}
	return likes, dislikes, nil
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error               { return nil }

func echoReply(_ context.Context, text string, _ []domain.Message) (string, error) {
	return "echo: " + text, nil
}

func failingReply(context.Context, string, []domain.Message) (string, error) {
	return "", errors.New("backend down")
}

func newTestRouter(t *testing.T, reply conversation.ReplyFunc, repo *fakeRepo) http.Handler {
	t.Helper()

	settings := config.Settings{Environment: config.Development, Host: "localhost", Port: 8000, Domain: "localhost:8000", Debug: true}
	h := NewHandler(Deps{Settings: settings, Reply: reply, Repo: repo})

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()

	var got chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestSubmitAppendsTurn(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, echoReply, &fakeRepo{})
	rec := post(t, h, "/api/chat/submit", map[string]any{"history": []any{}, "message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeChat(t, rec)
	if len(got.History) != 2 || got.History[0].Content != "hi" || got.History[1].Content != "echo: hi" {
		t.Fatalf("unexpected history %+v", got.History)
	}
	if got.History[1].Role != domain.RoleAssistant {
		t.Fatalf("expected assistant reply, got %s", got.History[1].Role)
	}
}

func TestSubmitRejectsBlankMessage(t *testing.T) {
	t.Parallel()

	called := false
	reply := func(context.Context, string, []domain.Message) (string, error) {
		called = true
		return "", nil
	}
	h := newTestRouter(t, reply, &fakeRepo{})
	rec := post(t, h, "/api/chat/submit", map[string]any{"message": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Fatal("reply backend must not be called for blank input")
	}
}

func TestSubmitGenerationFailure(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, failingReply, &fakeRepo{})
	rec := post(t, h, "/api/chat/submit", map[string]any{"message": "hi"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestUndoRetryClear(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, echoReply, &fakeRepo{})
	history := []domain.Message{
		domain.UserMessage("a"), domain.AssistantMessage("old"),
		domain.UserMessage("b"), domain.AssistantMessage("old"),
	}

	got := decodeChat(t, post(t, h, "/api/chat/undo", map[string]any{"history": history}))
	if len(got.History) != 2 || got.Warning != "" {
		t.Fatalf("undo: unexpected response %+v", got)
	}

	got = decodeChat(t, post(t, h, "/api/chat/retry", map[string]any{"history": history}))
	if len(got.History) != 4 || got.History[3].Content != "echo: b" {
		t.Fatalf("retry: unexpected response %+v", got)
	}

	got = decodeChat(t, post(t, h, "/api/chat/clear", map[string]any{"history": history}))
	if len(got.History) != 0 || got.Warning != "" {
		t.Fatalf("clear: unexpected response %+v", got)
	}

	got = decodeChat(t, post(t, h, "/api/chat/undo", map[string]any{"history": []any{}}))
	if got.Warning != conversation.WarnUndoNotEnough || got.History == nil {
		t.Fatalf("undo on empty: unexpected response %+v", got)
	}
}

func TestRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, echoReply, &fakeRepo{})
	rec := post(t, h, "/api/chat/undo", map[string]any{
		"history": []map[string]string{{"role": "system", "content": "x"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVoteRecordsFeedback(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	h := newTestRouter(t, echoReply, repo)
	history := []domain.Message{domain.UserMessage("q"), domain.AssistantMessage("a")}

	rec := post(t, h, "/api/chat/vote?session_id=tab-9", map[string]any{"history": history, "index": 1, "liked": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.votes) != 1 {
		t.Fatalf("expected 1 recorded vote, got %d", len(repo.votes))
	}
	v := repo.votes[0]
	if v.Prompt != "q" || v.Response != "a" || !v.Liked || v.SessionID != "tab-9" || v.UserID == "" {
		t.Fatalf("unexpected feedback %+v", v)
	}

	rec = post(t, h, "/api/chat/vote", map[string]any{"history": history, "index": 7})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range vote, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/feedback/tab-9", nil)
	lrec := httptest.NewRecorder()
	h.ServeHTTP(lrec, req)
	var listed struct {
		Votes []domain.Feedback `json:"votes"`
	}
	if err := json.NewDecoder(lrec.Body).Decode(&listed); err != nil || len(listed.Votes) != 1 {
		t.Fatalf("expected one listed vote, got %+v, %v", listed, err)
	}

	trec := httptest.NewRecorder()
	h.ServeHTTP(trec, httptest.NewRequest(http.MethodGet, "/api/feedback", nil))
	var totals map[string]int64
	if err := json.NewDecoder(trec.Body).Decode(&totals); err != nil || totals["likes"] != 1 || totals["dislikes"] != 0 {
		t.Fatalf("unexpected totals %v, %v", totals, err)
	}
}

func TestGetConfig(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, echoReply, &fakeRepo{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["environment"] != "development" || got["uri"] != "http://localhost:8000" || got["debug"] != true {
		t.Fatalf("unexpected config %v", got)
	}
	if got["uri_callback"] != "http://localhost:8000/callback" {
		t.Fatalf("unexpected callback %v", got["uri_callback"])
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pingErr: errors.New("locked")}
	h := newTestRouter(t, echoReply, repo)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
