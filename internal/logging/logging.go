// Package logging constructs the zap loggers used across repovector:
// a JSON production logger and a human-readable console logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the given environment ("production" or
// anything else, which gets a human-readable console encoder) and
// level ("debug", "info", "warn", "error").
func New(environment, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// WithStage returns a child logger tagged with the scheduler stage
// name, used to prefix every scan/materialize/emit log line.
func WithStage(logger *zap.Logger, stage string) *zap.Logger {
	return logger.With(zap.String("stage", stage))
}
