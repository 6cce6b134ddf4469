// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package profiler defines the interface used to time pipeline stages
// without tying the renderer to a particular engine.
package profiler

import (
	"log/slog"
	"strings"
	"time"
)

type ProfilerGroup interface {
	Start(label string) ProfilerGroup
	End()
}

// Nop is a ProfilerGroup that records nothing.
type Nop struct{}

func (Nop) Start(string) ProfilerGroup { return Nop{} }
func (Nop) End()                       {}

// LogGroup measures wall-clock time and logs it at debug level when the
// group ends. Nested groups log their path, e.g. "replay/FillRect".
type LogGroup struct {
	logger *slog.Logger
	path   string
	start  time.Time
	ended  bool
}

func NewLogGroup(logger *slog.Logger, label string) *LogGroup {
	return &LogGroup{
		logger: logger,
		path:   label,
		start:  time.Now(),
	}
}

func (g *LogGroup) Start(label string) ProfilerGroup {
	return &LogGroup{
		logger: g.logger,
		path:   strings.Join([]string{g.path, label}, "/"),
		start:  time.Now(),
	}
}

func (g *LogGroup) End() {
	if g.ended {
		panic("trying to end same group twice")
	}
	g.ended = true
	g.logger.Debug("profile", "group", g.path, "elapsed", time.Since(g.start))
}
