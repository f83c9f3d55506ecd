package logger

import (
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"rideshare/internal/config"
)

// New builds the process-wide JSON logger.
func New(cfg config.LogConfig, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, service)
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, cfg config.LogConfig, service string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("env", cfg.Env),
	)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
