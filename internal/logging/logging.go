// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "council-trader", "logs", "council.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSession adds a session ID to the logger context.
func WithSession(logger zerolog.Logger, sessionID string) zerolog.Logger {
	return logger.With().Str("session", sessionID).Logger()
}

// WithRole adds a role name to the logger context.
func WithRole(logger zerolog.Logger, role string) zerolog.Logger {
	return logger.With().Str("role", role).Logger()
}

// WithStage adds a pipeline stage to the logger context.
func WithStage(logger zerolog.Logger, stage string) zerolog.Logger {
	return logger.With().Str("stage", stage).Logger()
}

// LogStageTransition logs an orchestrator stage transition.
func LogStageTransition(logger zerolog.Logger, from, to string) {
	logger.Info().
		Str("event", "stage_transition").
		Str("from", from).
		Str("to", to).
		Msg("Stage transition")
}

// LogRoleResult logs the terminal outcome of one role call.
func LogRoleResult(logger zerolog.Logger, role, status string, tokens int, elapsed time.Duration) {
	logger.Info().
		Str("event", "role_result").
		Str("role", role).
		Str("status", status).
		Int("tokens", tokens).
		Dur("elapsed", elapsed).
		Msg("Role completed")
}

// LogCompaction logs a context compaction pass.
func LogCompaction(logger zerolog.Logger, before, after int, warnings int) {
	logger.Info().
		Str("event", "compaction").
		Int("tokens_before", before).
		Int("tokens_after", after).
		Int("warnings", warnings).
		Msg("Context compacted")
}

// LogDecision logs a final decision.
func LogDecision(logger zerolog.Logger, ticker, action string, confidence float64, gaps int) {
	logger.Info().
		Str("event", "decision").
		Str("ticker", ticker).
		Str("action", action).
		Float64("confidence", confidence).
		Int("coverage_gaps", gaps).
		Msg("Final decision")
}
