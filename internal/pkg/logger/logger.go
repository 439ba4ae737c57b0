// Package logger owns the process-wide slog stream: one JSON handler on
// stdout, level set from config at startup. Only the helpers the gateway
// actually logs with are exposed.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	level slog.LevelVar
	setup sync.Once
)

// Init sets the log level and installs the JSON handler. Helpers called
// before Init log at info level.
func Init(levelName string) {
	level.Set(parseLevel(levelName))
	setup.Do(install)
}

func parseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func install() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})
	slog.SetDefault(slog.New(handler))
}

func stream() *slog.Logger {
	setup.Do(install)
	return slog.Default()
}

func Info(msg string, args ...any)  { stream().Info(msg, args...) }
func Warn(msg string, args ...any)  { stream().Warn(msg, args...) }
func Error(msg string, args ...any) { stream().Error(msg, args...) }

// LogError attaches the error to the record. A nil error logs nothing.
func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	stream().ErrorContext(ctx, msg, args...)
}
