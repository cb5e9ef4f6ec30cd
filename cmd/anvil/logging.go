package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logOptions configures the CLI logger.
type logOptions struct {
	// Development selects human-readable console output with caller info.
	Development bool

	// Level is a zap level name ("debug", "info", "warn", "error").
	// Empty means info, or debug in development mode.
	Level string
}

// newLogger builds a logr.Logger backed by zap, writing to stderr so that
// command results on stdout stay machine-readable. The returned function
// flushes buffered entries.
func newLogger(opts logOptions) (logr.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}
