package config

import (
	"strings"
	"testing"
	"time"
)

func validSettings() Settings {
	return Settings{
		Environment:   Development,
		Host:          "localhost",
		Port:          8000,
		Domain:        "localhost",
		LogLevel:      "INFO",
		LogMaxAgeDays: 30,
		ConfigPath:    "./data/config.toml",
		Reply: ReplyConfig{
			Backend: BackendEcho,
			Timeout: time.Minute,
		},
		Store: StoreConfig{Enabled: true, Path: "./data/needle.db"},
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9001")
	t.Setenv("DOMAIN", "chat.example.com")
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CONFIG_PATH", "/tmp/needle.toml")
	t.Setenv("REPLY_BACKEND", "grpc")
	t.Setenv("REPLY_GRPC_ADDR", "agent:50051")
	t.Setenv("REPLY_TIMEOUT", "5s")
	t.Setenv("STORE_ENABLED", "false")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Environment != Production || s.Host != "127.0.0.1" || s.Port != 9001 || s.Domain != "chat.example.com" {
		t.Fatalf("unexpected network settings %+v", s)
	}
	if !s.Debug || s.LogLevel != "DEBUG" || s.ConfigPath != "/tmp/needle.toml" {
		t.Fatalf("unexpected runtime settings %+v", s)
	}
	if s.Reply.Backend != BackendGrpc || s.Reply.GrpcAddr != "agent:50051" || s.Reply.Timeout != 5*time.Second {
		t.Fatalf("unexpected reply settings %+v", s.Reply)
	}
	if s.Store.Enabled {
		t.Fatal("expected store to be disabled")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for non-numeric PORT")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Host = ""
	s.Port = 70000
	s.Reply.Backend = "carrier-pigeon"

	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"HOST", "PORT", "REPLY_BACKEND"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got: %v", want, err)
		}
	}
}

func TestValidateRequiresOpenAIKey(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Reply.Backend = BackendOpenAI
	if err := s.Validate(); err == nil || !strings.Contains(err.Error(), "REPLY_OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}

	s.Reply.OpenAIAPIKey = "sk-test"
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidSettingsPass(t *testing.T) {
	t.Parallel()

	if err := validSettings().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain       string
		wantURI      string
		wantCallback string
	}{
		{"localhost:8000", "http://localhost:8000", "http://localhost:8000/callback"},
		{"example.com", "https://example.com", "https://example.com/callback"},
		{"https://example.com", "https://example.com", "https://example.com/callback"},
		{"http://staging.example.com/", "http://staging.example.com", "http://staging.example.com/callback"},
	}

	for _, tt := range tests {
		s := Settings{Domain: tt.domain}
		if got := s.URI(); got != tt.wantURI {
			t.Errorf("URI(%q) = %q, want %q", tt.domain, got, tt.wantURI)
		}
		if got := s.URICallback(); got != tt.wantCallback {
			t.Errorf("URICallback(%q) = %q, want %q", tt.domain, got, tt.wantCallback)
		}
	}
}
