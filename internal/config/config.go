// Package config provides application settings: loading from the process
// environment, per-environment resolution and the worker hand-off file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
)

// Reply backends understood by the agent package.
const (
	BackendEcho   = "echo"
	BackendOpenAI = "openai"
	BackendGrpc   = "grpc"
)

// Settings holds all application configuration.
type Settings struct {
	Environment Environment `env:"ENVIRONMENT" envDefault:"development"`
	Host        string      `env:"HOST" envDefault:"localhost"`
	Port        int         `env:"PORT" envDefault:"8000"`
	Domain      string      `env:"DOMAIN" envDefault:"localhost"`
	Debug       bool        `env:"DEBUG" envDefault:"false"`
	LogLevel    string      `env:"LOG_LEVEL" envDefault:"INFO"`

	LogFile       string `env:"LOG_FILE"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`

	// ConfigPath is where the launcher leaves the hand-off file for workers.
	ConfigPath string `env:"CONFIG_PATH" envDefault:"./data/config.toml"`

	Reply ReplyConfig `envPrefix:"REPLY_"`
	Store StoreConfig `envPrefix:"STORE_"`
}

// ReplyConfig selects and configures the reply backend.
type ReplyConfig struct {
	Backend            string        `env:"BACKEND" envDefault:"echo"`
	Timeout            time.Duration `env:"TIMEOUT" envDefault:"60s"`
	SystemPrompt       string        `env:"SYSTEM_PROMPT"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIModel        string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	GrpcAddr           string        `env:"GRPC_ADDR" envDefault:"localhost:50051"`
	GrpcConnectTimeout time.Duration `env:"GRPC_CONNECT_TIMEOUT" envDefault:"5s"`
}

// StoreConfig controls the feedback database.
type StoreConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"./data/needle.db"`
}

// Load reads settings from environment variables.
func Load() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// Validate checks every field and reports all problems at once.
func (s Settings) Validate() error {
	var result error

	if _, err := ParseEnvironment(string(s.Environment)); err != nil {
		result = multierror.Append(result, err)
	}
	if strings.TrimSpace(s.Host) == "" {
		result = multierror.Append(result, errors.New("HOST cannot be empty"))
	}
	if s.Port <= 0 || s.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT must be between 1 and 65535, got %d", s.Port))
	}
	if strings.TrimSpace(s.Domain) == "" {
		result = multierror.Append(result, errors.New("DOMAIN cannot be empty"))
	}
	if s.ConfigPath == "" {
		result = multierror.Append(result, errors.New("CONFIG_PATH cannot be empty"))
	}
	if s.LogMaxAgeDays < 0 {
		result = multierror.Append(result, errors.New("LOG_MAX_AGE_DAYS must be >= 0"))
	}

	switch s.Reply.Backend {
	case BackendEcho, BackendGrpc:
	case BackendOpenAI:
		if s.Reply.OpenAIAPIKey == "" {
			result = multierror.Append(result, errors.New("REPLY_OPENAI_API_KEY is required for the openai backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("REPLY_BACKEND must be one of echo, openai, grpc, got %q", s.Reply.Backend))
	}
	if s.Reply.Timeout <= 0 {
		result = multierror.Append(result, errors.New("REPLY_TIMEOUT must be > 0"))
	}

	if s.Store.Enabled && s.Store.Path == "" {
		result = multierror.Append(result, errors.New("STORE_PATH cannot be empty when the store is enabled"))
	}

	return result
}

// Addr returns the host:port pair the server binds to.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (s Settings) IsDevelopment() bool {
	return s.Environment == Development
}

// URI returns the externally visible base URL. The scheme is http for
// localhost domains and https otherwise; a domain that already carries a
// scheme is used as is.
func (s Settings) URI() string {
	if hasScheme(s.Domain) {
		return strings.TrimRight(s.Domain, "/")
	}
	scheme := "https"
	if strings.Contains(s.Domain, "localhost") {
		scheme = "http"
	}
	return scheme + "://" + s.Domain
}

// URICallback returns the OAuth-style callback URL under URI.
func (s Settings) URICallback() string {
	return s.URI() + "/callback"
}

func hasScheme(domain string) bool {
	return strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://")
}
