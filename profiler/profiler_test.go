package profiler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	root := NewLogGroup(logger, "replay")
	child := root.Start("FillRect")
	child.End()
	root.End()

	out := buf.String()
	if !strings.Contains(out, "group=replay/FillRect") {
		t.Errorf("output %q lacks nested group path", out)
	}
	if strings.Count(out, "msg=profile") != 2 {
		t.Errorf("output %q, want two profile records", out)
	}
}

func TestLogGroupDoubleEnd(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ending a group twice did not panic")
		}
	}()
	g := NewLogGroup(slog.Default(), "x")
	g.End()
	g.End()
}

func TestNop(t *testing.T) {
	var g ProfilerGroup = Nop{}
	g.Start("a").Start("b").End()
	g.End()
}
