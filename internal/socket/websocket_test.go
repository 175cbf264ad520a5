package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/needle/internal/domain"
	"github.com/ashureev/needle/internal/identity"
)

type serverEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
	Warning   string           `json:"warning"`
	Error     string           `json:"error"`
}

type recordingSink struct {
	mu    sync.Mutex
	votes []domain.Feedback
}

func (s *recordingSink) RecordVote(_ context.Context, fb domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, fb)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.votes)
}

type countingGauge struct{ open atomic.Int64 }

func (g *countingGauge) SessionOpened() { g.open.Add(1) }
func (g *countingGauge) SessionClosed() { g.open.Add(-1) }

func startServer(t *testing.T, cfg HandlerConfig) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(identity.Middleware(true)(NewHandler(cfg)))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), opts)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.CloseNow() })
	return ws
}

func roundTrip(t *testing.T, ctx context.Context, ws *websocket.Conn, ev Event) serverEvent {
	t.Helper()

	if err := wsjson.Write(ctx, ws, ev); err != nil {
		t.Fatalf("write %s: %v", ev.Type, err)
	}
	return read(t, ctx, ws)
}

func read(t *testing.T, ctx context.Context, ws *websocket.Conn) serverEvent {
	t.Helper()

	var got serverEvent
	if err := wsjson.Read(ctx, ws, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func echoReply(_ context.Context, text string, _ []domain.Message) (string, error) {
	return "echo: " + text, nil
}

func TestChatSessionFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sink := &recordingSink{}
	gauge := &countingGauge{}
	sessions := NewSessionManager()
	srv := startServer(t, HandlerConfig{Sessions: sessions, Reply: echoReply, Feedback: sink, Gauge: gauge, IsDev: true})
	ws := dial(t, ctx, srv, nil)

	hello := read(t, ctx, ws)
	if hello.Type != EventHistory || hello.SessionID == "" || hello.Messages == nil || len(hello.Messages) != 0 {
		t.Fatalf("unexpected initial event %+v", hello)
	}
	if gauge.open.Load() != 1 || sessions.Count() != 1 {
		t.Fatalf("expected one open session, gauge=%d manager=%d", gauge.open.Load(), sessions.Count())
	}

	got := roundTrip(t, ctx, ws, Event{Type: EventSubmit, Text: "hi"})
	if len(got.Messages) != 2 || got.Messages[1].Content != "echo: hi" {
		t.Fatalf("submit: unexpected event %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventVote, Index: 1, Liked: true})
	if len(got.Messages) != 2 || sink.count() != 1 {
		t.Fatalf("vote: unexpected event %+v, votes=%d", got, sink.count())
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventRetry})
	if len(got.Messages) != 2 || got.Warning != "" {
		t.Fatalf("retry: unexpected event %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventUndo})
	if len(got.Messages) != 0 || got.Warning != "" {
		t.Fatalf("undo: unexpected event %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventUndo})
	if got.Warning != "not enough history to undo" {
		t.Fatalf("undo on empty: unexpected event %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventClear})
	if got.Warning != "history is already empty" {
		t.Fatalf("clear on empty: unexpected event %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: "dance"})
	if got.Type != "error" {
		t.Fatalf("expected error event for unknown type, got %+v", got)
	}

	if err := ws.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for gauge.open.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if gauge.open.Load() != 0 {
		t.Fatal("expected session to be closed after disconnect")
	}
}

func TestGenerationErrorKeepsSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var fail atomic.Bool
	fail.Store(true)
	reply := func(_ context.Context, text string, _ []domain.Message) (string, error) {
		if fail.Load() {
			return "", errors.New("backend down")
		}
		return "ok " + text, nil
	}

	srv := startServer(t, HandlerConfig{Reply: reply, IsDev: true})
	ws := dial(t, ctx, srv, nil)
	_ = read(t, ctx, ws)

	got := roundTrip(t, ctx, ws, Event{Type: EventSubmit, Text: "hi"})
	if got.Type != "error" || !strings.Contains(got.Error, "backend down") {
		t.Fatalf("expected generation error event, got %+v", got)
	}

	got = roundTrip(t, ctx, ws, Event{Type: EventSubmit, Text: "  "})
	if got.Type != "error" {
		t.Fatalf("expected error for blank message, got %+v", got)
	}

	fail.Store(false)
	got = roundTrip(t, ctx, ws, Event{Type: EventSubmit, Text: "again"})
	if got.Type != EventHistory || len(got.Messages) != 2 {
		t.Fatalf("expected session to keep working, got %+v", got)
	}
}

func TestInvalidEventIsReported(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := startServer(t, HandlerConfig{Reply: echoReply, IsDev: true})
	ws := dial(t, ctx, srv, nil)
	_ = read(t, ctx, ws)

	if err := ws.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if got := read(t, ctx, ws); got.Type != "error" {
		t.Fatalf("expected error event, got %+v", got)
	}
	if got := roundTrip(t, ctx, ws, Event{Type: EventHistory}); got.Type != EventHistory {
		t.Fatalf("expected history after invalid event, got %+v", got)
	}
}

func TestOriginRejectedOutsideDevelopment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := startServer(t, HandlerConfig{Reply: echoReply, AllowedOrigin: "https://needle.example"})

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	if err == nil {
		t.Fatal("expected dial to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	ws := dial(t, ctx, srv, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://needle.example"}},
	})
	if got := read(t, ctx, ws); got.Type != EventHistory {
		t.Fatalf("expected history for allowed origin, got %+v", got)
	}
}
