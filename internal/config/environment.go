package config

import (
	"fmt"
	"strings"
)

// Environment is a deployment target.
type Environment string

const (
	// Development runs locally, without a proxy or TLS.
	Development Environment = "development"
	// Staging runs behind a plain http proxy.
	Staging Environment = "staging"
	// Production runs behind a proxy terminating TLS.
	Production Environment = "production"
)

// InvalidEnvironmentError reports an unknown environment name.
type InvalidEnvironmentError struct {
	Value string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q (expected development, staging or production)", e.Value)
}

// ParseEnvironment maps a name to an Environment, ignoring case and
// surrounding spaces.
func ParseEnvironment(name string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := overrides[env]; !ok {
		return "", &InvalidEnvironmentError{Value: name}
	}
	return env, nil
}

// override is the deployment shape forced by an environment.
type override struct {
	host   string
	port   int
	domain func(host string, port int, domain string) string
}

var overrides = map[Environment]override{
	Development: {
		host: "localhost",
		port: 8000,
		domain: func(host string, port int, _ string) string {
			return fmt.Sprintf("%s:%d", host, port)
		},
	},
	Staging: {
		host: "0.0.0.0",
		port: 8000,
		domain: func(_ string, _ int, domain string) string {
			return "http://" + domain
		},
	},
	Production: {
		host: "0.0.0.0",
		port: 8000,
		domain: func(_ string, _ int, domain string) string {
			return "https://" + domain
		},
	},
}

// Resolve returns a copy of base with the host, port and domain forced by
// env. The environment always wins over values coming from base.
// Staging and production store a domain with its scheme, which URI keeps as is.
func Resolve(env Environment, base Settings) (Settings, error) {
	parsed, err := ParseEnvironment(string(env))
	if err != nil {
		return Settings{}, err
	}
	o := overrides[parsed]

	resolved := base
	resolved.Environment = parsed
	resolved.Host = o.host
	resolved.Port = o.port
	resolved.Domain = o.domain(o.host, o.port, base.Domain)
	return resolved, nil
}
