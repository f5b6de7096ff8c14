package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger pairs the process logger with the level variable that controls it,
// so the level can be changed after startup.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds a logger writing to stdout and installs it as the slog default.
// format is "json" or "text"; level is debug|info|warn|error.
func New(level, format string) (*Logger, error) {
	return NewWriter(os.Stdout, level, format)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level, format string) (*Logger, error) {
	lv := new(slog.LevelVar)
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	lv.Set(l)

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q: want json|text", format)
	}

	logger := &Logger{Logger: slog.New(h), level: lv}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

// SetLevel changes the minimum level at runtime. Unknown names are rejected
// and the current level is kept.
func (l *Logger) SetLevel(level string) error {
	lv, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if lv != l.level.Level() {
		l.level.Set(lv)
		l.Info("log level changed", "level", lv.String())
	}
	return nil
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

// ParseLevel maps a config level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q: want debug|info|warn|error", s)
}
