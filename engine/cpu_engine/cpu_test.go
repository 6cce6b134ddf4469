package cpu_engine

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/internal/parallel"
	"honnef.co/go/gp0replay/profiler"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/safeish"
)

func render(t *testing.T, eng *Engine, ctx context.Context, words []uint32, pgroup profiler.ProfilerGroup) ([]byte, error) {
	t.Helper()
	lists := encoding.Pack(gp0.Decode(words))
	rec, target := renderer.RenderFull(lists, vram.Blank(), gp0.DefaultStatus, eng.FullShaders(), pgroup)
	if err := eng.RunRecording(ctx, rec, pgroup); err != nil {
		if _, ok := eng.Download(target.Output); ok {
			t.Errorf("failed recording left a download behind")
		}
		return nil, err
	}
	out, ok := eng.Download(target.Output)
	if !ok {
		t.Fatal("output wasn't downloaded")
	}
	if len(out) != vram.Size*4 {
		t.Fatalf("output has %d bytes, want %d", len(out), vram.Size*4)
	}
	return out, nil
}

func pixel(out []byte, x, y int) [4]byte {
	i := 4 * (y*vram.Width + x)
	return [4]byte(out[i : i+4])
}

func TestRunRecording(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()
	eng := New(pool)

	out, err := render(t, eng, context.Background(), []uint32{
		0x02ff00ff, 10 | 20<<16, 5 | 5<<16,
		0x220000ff, 100 | 100<<16, 110 | 100<<16, 100 | 110<<16,
	}, profiler.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	if got := pixel(out, 10, 20); got != [4]byte{0xff, 0, 0xff, 0xff} {
		t.Errorf("fill rect pixel = %v", got)
	}
	if got := pixel(out, 15, 20); got != [4]byte{0, 0, 0, 0xff} {
		t.Errorf("pixel right of fill rect = %v", got)
	}
	// Translucent red over black.
	if got := pixel(out, 100, 100); got != [4]byte{123, 0, 0, 0xff} {
		t.Errorf("translucent pixel = %v", got)
	}
}

// randomTriangles mixes opaque and semi-transparent triangles and toggles
// the mask settings, so that results depend on the order of writes.
func randomTriangles(r *rand.Rand, n int) []uint32 {
	var words []uint32
	for range n {
		if r.IntN(20) == 0 {
			words = append(words, 0xe6000000|r.Uint32()&3)
		}
		op := uint32(0x20)
		if r.IntN(2) == 0 {
			op = 0x22
		}
		words = append(words, op<<24|r.Uint32()&0xffffff)
		for range 3 {
			x := uint32(r.IntN(300))
			y := uint32(r.IntN(300))
			words = append(words, x|y<<16)
		}
	}
	return words
}

func TestDispatchOrderIndependence(t *testing.T) {
	words := randomTriangles(rand.New(rand.NewPCG(1, 2)), 500)

	var want []byte
	for _, workers := range []int{1, 3, 16} {
		pool := parallel.NewWorkerPool(workers)
		out, err := render(t, New(pool), context.Background(), words, profiler.Nop{})
		pool.Close()
		if err != nil {
			t.Fatal(err)
		}
		if want == nil {
			want = out
			continue
		}
		if !bytes.Equal(out, want) {
			t.Errorf("%d workers produced a different image", workers)
		}
	}
}

type cancelOn struct {
	label  string
	cancel context.CancelFunc
	seen   []string
}

func (c *cancelOn) Start(label string) profiler.ProfilerGroup {
	c.seen = append(c.seen, label)
	if label == c.label {
		c.cancel()
	}
	return c
}

func (c *cancelOn) End() {}

func TestCancellationBetweenStages(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	defer pool.Close()
	eng := New(pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pgroup := &cancelOn{label: "fill_rect", cancel: cancel}
	_, err := render(t, eng, ctx, []uint32{0x02ffffff, 0, 1 | 1<<16}, pgroup)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context.Canceled", err)
	}
	for _, label := range pgroup.seen {
		if label == "resolve" {
			t.Errorf("resolve ran after cancellation")
		}
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := render(t, New(pool), ctx, nil, profiler.Nop{}); !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want context.Canceled", err)
	}
}

func TestUploadAndScratchBuffers(t *testing.T) {
	pool := parallel.NewWorkerPool(1)
	defer pool.Close()
	eng := New(pool)

	var rec renderer.Recording
	buf := rec.Upload("data", []byte{1, 2, 3, 4})
	rec.Download(buf)
	if err := eng.RunRecording(context.Background(), &rec, profiler.Nop{}); err != nil {
		t.Fatal(err)
	}
	out, _ := eng.Download(buf)
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Errorf("download = %v", out)
	}

	var rec2 renderer.Recording
	scratch := renderer.NewBufferProxy(8, "scratch")
	rec2.Dispatch(eng.FullShaders().Resolve, renderer.WorkgroupSize{0, 1, 1},
		[]renderer.BufferProxy{renderer.NewBufferProxy(32, "config"), scratch, scratch})
	rec2.Download(scratch)
	if err := eng.RunRecording(context.Background(), &rec2, profiler.Nop{}); err != nil {
		t.Fatal(err)
	}
	// Buffers that aren't uploaded start out zeroed.
	out, ok := eng.Download(scratch)
	if !ok || !bytes.Equal(out, make([]byte, 8)) {
		t.Errorf("download = %v, %t", out, ok)
	}
}

func TestMutableBindingCopiesUpload(t *testing.T) {
	pool := parallel.NewWorkerPool(1)
	defer pool.Close()
	eng := New(pool)

	config := renderer.ConfigUniform{Width: 2, Height: 1}
	target := []uint32{0xffffffff, 0xffffffff}

	var rec renderer.Recording
	configBuf := rec.UploadUniform("config", safeish.AsBytes(&config))
	src := rec.Upload("vram16", safeish.SliceCast[[]byte]([]uint32{0x56781234}))
	dst := rec.Upload("vram32", safeish.SliceCast[[]byte](target))
	rec.Dispatch(eng.FullShaders().InitVram, renderer.WorkgroupSize{1, 1, 1},
		[]renderer.BufferProxy{configBuf, src, dst})
	rec.Download(dst)
	if err := eng.RunRecording(context.Background(), &rec, profiler.Nop{}); err != nil {
		t.Fatal(err)
	}

	out, ok := eng.Download(dst)
	if !ok {
		t.Fatal("vram32 wasn't downloaded")
	}
	if got := safeish.SliceCast[[]uint32](out); got[0] != 0x1234 || got[1] != 0x5678 {
		t.Errorf("kernel output = %#x", got)
	}
	if target[0] != 0xffffffff || target[1] != 0xffffffff {
		t.Errorf("kernel wrote to the caller's data: %#x", target)
	}
}
