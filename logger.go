package llmproviders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
)

// DefaultLogger implements interfaces.Logger on top of slog.
type DefaultLogger struct {
	logger *slog.Logger
	file   *os.File
}

var _ interfaces.Logger = (*DefaultLogger)(nil)

// NewDefaultLogger writes text records at or above level to w.
func NewDefaultLogger(w io.Writer, level slog.Level) *DefaultLogger {
	return &DefaultLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// NewFileLogger appends to logFile, creating it if needed. An empty path
// logs to stderr so the chat output on stdout stays clean.
func NewFileLogger(logFile string, level slog.Level) (*DefaultLogger, error) {
	if logFile == "" {
		return NewDefaultLogger(os.Stderr, level), nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewDefaultLogger(f, level)
	l.file = f
	return l, nil
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Slog exposes the underlying slog.Logger.
func (l *DefaultLogger) Slog() *slog.Logger {
	return l.logger
}

func (l *DefaultLogger) Infof(format string, v ...any) {
	l.log(slog.LevelInfo, format, v...)
}

func (l *DefaultLogger) Errorf(format string, v ...any) {
	l.log(slog.LevelError, format, v...)
}

func (l *DefaultLogger) Debugf(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *DefaultLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// Close closes the log file, if any.
func (l *DefaultLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
