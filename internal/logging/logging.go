// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Extra levels around the slog defaults.
const (
	LevelTrace    = slog.LevelDebug - 4
	LevelCritical = slog.LevelError + 4
)

var levelNames = map[string]slog.Level{
	"TRACE":     LevelTrace,
	"DEBUG":     slog.LevelDebug,
	"INFO":      slog.LevelInfo,
	"SUCCESS":   slog.LevelInfo,
	"WARN":      slog.LevelWarn,
	"WARNING":   slog.LevelWarn,
	"ERROR":     slog.LevelError,
	"CRITICAL":  LevelCritical,
	"EXCEPTION": LevelCritical,
}

// ParseLevel converts a level name such as "warning" or "TRACE".
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levelNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Options configures New.
type Options struct {
	Level      string
	Debug      bool
	JSON       bool
	File       string
	MaxAgeDays int
	Stdout     io.Writer
}

// New builds a logger writing to stdout and, when File is set, to a
// rotating log file. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename: opts.File,
			MaxAge:   opts.MaxAgeDays,
			Compress: true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   opts.Debug,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closer, nil
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case level < slog.LevelDebug:
		a.Value = slog.StringValue("TRACE")
	case level >= LevelCritical:
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
