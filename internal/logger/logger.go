// Package logger holds the logger shared by gp0replay and its sub-packages.
//
// The root package exposes SetLogger; sub-packages call L to log without
// importing the root package.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var ptr atomic.Pointer[slog.Logger]

func init() {
	ptr.Store(slog.New(nopHandler{}))
}

// Set installs l. A nil logger restores the silent default.
func Set(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	ptr.Store(l)
}

// L returns the current logger. It is safe for concurrent use.
func L() *slog.Logger {
	return ptr.Load()
}
