package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrHandoffMissing means a worker started before the launcher wrote its
// hand-off file.
var ErrHandoffMissing = errors.New("settings hand-off file not found")

// Handoff carries the runtime flags a worker process cannot receive on its
// command line. It is written once by the launcher and only read by workers.
type Handoff struct {
	Debug    bool   `toml:"debug"`
	LogLevel string `toml:"log_level"`
}

// Handoff extracts the hand-off fields from s.
func (s Settings) Handoff() Handoff {
	return Handoff{Debug: s.Debug, LogLevel: s.LogLevel}
}

// WithHandoff returns a copy of s with the hand-off fields applied.
func (s Settings) WithHandoff(h Handoff) Settings {
	s.Debug = h.Debug
	s.LogLevel = h.LogLevel
	return s
}

// WriteHandoff creates path if needed and overwrites it with h.
func WriteHandoff(path string, h Handoff) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create hand-off directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open hand-off file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(h); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode hand-off file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close hand-off file: %w", err)
	}
	return nil
}

// ReadHandoff loads a hand-off file. A missing, malformed or incomplete file
// is an error; no field is ever defaulted.
func ReadHandoff(path string) (Handoff, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handoff{}, fmt.Errorf("%w: %s", ErrHandoffMissing, path)
		}
		return Handoff{}, fmt.Errorf("stat hand-off file: %w", err)
	}

	var h Handoff
	md, err := toml.DecodeFile(path, &h)
	if err != nil {
		return Handoff{}, fmt.Errorf("decode hand-off file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Handoff{}, fmt.Errorf("hand-off file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for _, key := range []string{"debug", "log_level"} {
		if !md.IsDefined(key) {
			return Handoff{}, fmt.Errorf("hand-off file %s is missing %q", path, key)
		}
	}

	return h, nil
}
