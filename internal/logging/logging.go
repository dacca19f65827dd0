// Package logging centralizes the zap.Logger construction shared by the
// pool and lifecycle packages, per SPEC_FULL.md §10.1. Neither package
// constructs its own zap.Config; both accept a *zap.Logger and fall back
// to this package's NoopLogger when none is supplied.
package logging

import "go.uber.org/zap"

// NoopLogger is the default logger for library code run without an
// explicit caller-supplied *zap.Logger.
func NoopLogger() *zap.Logger {
	return zap.NewNop()
}

// New builds a production-style logger at the given level
// ("debug", "info", "warn", "error"; anything else maps to "info").
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

// Or returns logger if non-nil, else NoopLogger(). Every package that
// accepts an optional *zap.Logger funnels through this.
func Or(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return NoopLogger()
	}
	return logger
}
