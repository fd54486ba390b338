// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package logging builds the structured loggers every BigBrotr service
// writes to stderr, with an optional JSON mode. The default console mode
// is zap's console encoder: timestamp, level, logger name and message,
// followed by the structured fields as one JSON object, not as
// key=value pairs. It
// generalizes the teacher's package-level verbose/module filter into a
// per-component zap logger, since zap's fields subsume the old granular
// DebugMethod(module, method, ...) filtering with -loglevel and Named().
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the service-wide minimum log level, set from --log-level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

func (l Level) zapLevel() zapcore.Level {
	switch strings.ToUpper(string(l)) {
	case string(LevelDebug):
		return zapcore.DebugLevel
	case string(LevelWarn):
		return zapcore.WarnLevel
	case string(LevelError):
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the root logger for a service. json=true switches the
// console encoder for zap's JSON encoder, satisfying spec.md
// §7's "additional JSON mode available".
func New(service string, level Level, json bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if json {
		cfg.Encoding = "json"
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.ConsoleSeparator = " "
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", service)), nil
}

// Named returns a child logger scoped to a component, replacing the
// teacher's DebugMethod(module, method, ...) call sites with structured
// fields any sink can filter on.
func Named(l *zap.Logger, component string) *zap.Logger {
	return l.Named(component)
}
