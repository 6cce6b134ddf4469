package gp0replay

import (
	"log/slog"

	"honnef.co/go/gp0replay/internal/logger"
)

// SetLogger installs the logger used by gp0replay and all of its packages.
// Passing nil silences logging again, which is the default.
//
// Decode anomalies and order saturation are logged at warn level, context
// lifetime at info level, and per-command and per-stage details at debug
// level.
func SetLogger(l *slog.Logger) {
	logger.Set(l)
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger {
	return logger.L()
}
