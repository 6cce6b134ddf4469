package wgpu_engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"honnef.co/go/gp0replay/engine/shaders"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/wgpu"
)

func TestNewWithoutDevice(t *testing.T) {
	if _, err := New(nil, &RendererOptions{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("got error %v, want ErrNoDevice", err)
	}
	if _, err := New(nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("surfaceless: got error %v, want ErrNoDevice", err)
	}
}

func TestPadCopy(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{nil, nil},
		{[]byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
		{[]byte{1}, []byte{1, 0, 0, 0}},
		{[]byte{1, 2, 3, 4, 5, 6}, []byte{1, 2, 3, 4, 5, 6, 0, 0}},
	}
	for _, tt := range tests {
		if got := padCopy(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("padCopy(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	in := []byte{9, 9}
	out := padCopy(in)
	out[0] = 0
	if in[0] != 9 {
		t.Error("padCopy modified its input")
	}
}

func TestBlitExpandsLikeResolve(t *testing.T) {
	const expr = "f32((c * 527u + 23u) >> 6u) / 255.0"
	if !strings.Contains(blitSource, expr) {
		t.Fatalf("blit shader doesn't expand channels with %q", expr)
	}
	// The integer part of expr, evaluated for every 5-bit channel value,
	// must agree with the resolve stage.
	for c := uint32(0); c < 32; c++ {
		got := uint8((c*527 + 23) >> 6)
		r, _, _ := vram.RGB24FromColor15(uint16(c))
		if got != r {
			t.Errorf("channel %d: blit gives %d, resolve gives %d", c, got, r)
		}
	}
}

func TestPoolSizeClass(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{1, 2},
		{2, 2},
		{5, 6},
		{9, 12},
		{17, 24},
		{100, 128},
		{4096, 4096},
	}
	for _, tt := range tests {
		if got := poolSizeClass(tt.in, 1); got != tt.want {
			t.Errorf("poolSizeClass(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBindGroupLayoutEntries(t *testing.T) {
	entries := bindGroupLayoutEntries(shaders.Collection.RenderPoly.Bindings)
	want := []wgpu.BufferBindingType{
		wgpu.BufferBindingTypeUniform,
		wgpu.BufferBindingTypeReadOnlyStorage,
		wgpu.BufferBindingTypeReadOnlyStorage,
		wgpu.BufferBindingTypeStorage,
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Binding != uint32(i) || e.Buffer == nil || e.Buffer.Type != want[i] {
			t.Errorf("entry %d = %+v, want binding %d of type %v", i, e, i, want[i])
		}
	}
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	g := p.Start(1)
	if g != nil {
		t.Fatal("nil profiler returned a group")
	}
	if g.Nest("child") != nil || g.Compute("pass") != nil || g.Render("pass") != nil {
		t.Errorf("nil group recorded queries")
	}
	g.Start("child").End()
	g.End()
	if res := p.Collect(); res != nil {
		t.Errorf("nil profiler collected %v", res)
	}
}
