// Package logger configures the engine's structured logging. The engine
// never writes to stdout directly; every component accepts or falls back
// to the package-level *slog.Logger configured here.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the package-level default logger. It is safe to read
// concurrently once Init or InitWithConfig has run; until then it holds
// the zero slog default (stderr, text, info level).
var Log = slog.Default()

// Config configures the logger's level, format, and output destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     string // stdout, stderr, file
	FilePath   string
	MaxSize    int // MB, for file output
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init initializes the default logger at the given level, JSON-formatted
// to stdout. Use InitWithConfig for file output or rotation settings.
func Init(level string) {
	InitWithConfig(Config{Level: level, Format: "json", Output: "stdout"})
}

// InitWithConfig initializes the default logger from a full Config.
func InitWithConfig(cfg Config) {
	var lvl slog.Level
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var writer io.Writer
	switch cfg.Output {
	case "stderr":
		writer = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			cfg.FilePath = "logs/loadsim.log"
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			writer = os.Stdout
		} else {
			writer = &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
		}
	default:
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	Log = slog.New(handler)
}

// WithContext returns a logger enriched with the given key-value pairs.
// The context argument is accepted for call-site symmetry with
// otel-aware logging helpers even though no value is read from it here.
func WithContext(_ context.Context, args ...any) *slog.Logger {
	return Log.With(args...)
}

// WithRun returns a logger tagged with a simulation run identifier, so
// that log lines from repeated simulate() calls (baseline + opportunity
// variants) can be correlated.
func WithRun(runID string) *slog.Logger {
	return Log.With("run_id", runID)
}

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) { Log.Debug(msg, args...) }

// Info logs at info level using the default logger.
func Info(msg string, args ...any) { Log.Info(msg, args...) }

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) { Log.Warn(msg, args...) }

// Error logs at error level using the default logger.
func Error(msg string, args ...any) { Log.Error(msg, args...) }
