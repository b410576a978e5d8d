// Package logging builds the logr.Logger used across anvilpkg. Records flow
// through zap via zapr; packages obtain the logger from their context with
// logr.FromContextOrDiscard.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "ANVILPKG_LOG_LEVEL"

// DebugLevel is the logr verbosity used for debug records.
const DebugLevel = 1

// Level is the minimum severity written.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Options struct {
	Level       Level
	Development bool
}

// ParseLevel accepts debug, info, warn and error. Warnings are info records
// (see Warn), so warn selects LevelInfo.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info", "warn", "warning":
		return LevelInfo, nil
	case "debug", "trace":
		return LevelDebug, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("logging: unknown level %q", raw)
	}
}

// New builds a zap-backed logger. EnvLogLevel, when valid, wins over
// opts.Level.
func New(opts Options) (logr.Logger, error) {
	level := opts.Level
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if lvl, err := ParseLevel(raw); err == nil {
			level = lvl
		}
	}
	if level == "" {
		level = LevelInfo
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.DisableStacktrace = !opts.Development

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("logging: build logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		// zapr maps V(n) to zap level -n.
		return zapcore.Level(-DebugLevel)
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Warn writes a warning-tagged record. logr has no warning level, so warnings
// are Info records carrying severity=warning.
func Warn(log logr.Logger, msg string, keysAndValues ...any) {
	log.Info(msg, append([]any{"severity", "warning"}, keysAndValues...)...)
}

// Debug is shorthand for log.V(DebugLevel).
func Debug(log logr.Logger) logr.Logger {
	return log.V(DebugLevel)
}
