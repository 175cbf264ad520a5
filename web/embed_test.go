package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerRendersIndex(t *testing.T) {
	h, err := Handler(PageOptions{Title: "Needle", WebsocketPath: "/ws/chat", Debug: true})
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	page := string(body)
	for _, want := range []string{"<title>Needle</title>", `data-ws-path="/ws/chat"`, `data-debug="true"`, "Enter any ask or say something"} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %q in rendered page", want)
		}
	}
}

func TestHandlerServesAssets(t *testing.T) {
	h, err := Handler(PageOptions{})
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/static/chat.css", "/static/chat.js"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	for _, path := range []string{"/static/index.html", "/nope"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}
