package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/needle/internal/api"
	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/metrics"
)

func TestRouterMountsRoutes(t *testing.T) {
	settings := config.Settings{Environment: config.Production, Domain: "https://needle.example"}
	r := NewRouter(RouterDeps{
		Settings: settings,
		API:      api.NewHandler(api.Deps{Settings: settings}),
		Web: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Metrics: metrics.New(),
	})

	cases := map[string]int{
		"/health":          http.StatusOK,
		"/api/config":      http.StatusOK,
		"/metrics":         http.StatusOK,
		"/":                http.StatusTeapot,
		"/static/chat.css": http.StatusTeapot,
		"/does-not-exist":  http.StatusNotFound,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || !cookies[0].Secure {
		t.Fatal("expected secure identity cookie in production")
	}
}
