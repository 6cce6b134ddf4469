// Package gp0replay replays captured PlayStation GPU command streams
// against a VRAM snapshot and reconstructs the resulting framebuffer.
//
// A replay decodes the GP0 words, packs the commands into fixed-stride
// lists and rasterizes them with a pipeline of compute stages. Fill rects
// and opaque triangles are drawn in parallel; every pixel carries the order
// index of the primitive that last wrote it, and a write only commits when
// its order is at least the stored one. Triangles that read the pixel they
// replace (semi-transparent or mask-checked ones) are drawn per tile, in
// order. The result is identical to drawing the primitives one after
// another.
package gp0replay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/engine/cpu_engine"
	"honnef.co/go/gp0replay/engine/wgpu_engine"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/internal/logger"
	"honnef.co/go/gp0replay/internal/parallel"
	"honnef.co/go/gp0replay/profiler"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/wgpu"
)

var ErrClosed = errors.New("gp0replay: context is closed")

// ErrNoDevice is returned by Acquire when Options.GPU is set but no device
// is available.
var ErrNoDevice = wgpu_engine.ErrNoDevice

// Frame is the input of a replay.
type Frame struct {
	// Status is GPUSTAT at the start of the capture.
	Status gp0.Status
	// Commands are the captured GP0 words.
	Commands []uint32
	// VRAM is the snapshot the replay starts from. A nil snapshot is
	// treated as all black.
	VRAM vram.Source
}

type Result struct {
	// Image is the reconstructed VRAM, 1024×512.
	Image *image.RGBA
	Stats gp0.Stats
	Lists *encoding.Lists
	// Saturated is the number of records whose order index didn't fit in
	// the pixel tag and was clamped to encoding.MaxOrder. Overlapping
	// records among them may be drawn out of order.
	Saturated int
}

// Context owns the compute resources of replays. Replays on the same
// Context are serialized; separate contexts run independently.
type Context struct {
	opts Options

	mu     sync.Mutex
	pool   *parallel.WorkerPool
	engine *cpu_engine.Engine
	// gpu and queue are set instead of pool and engine when the context
	// renders on a device.
	gpu    *wgpu_engine.Engine
	queue  *wgpu.Queue
	closed bool
	frames uint64
}

// Acquire creates a compute context. It fails if opts are invalid or ctx
// is already done; no resources are held in that case.
func Acquire(ctx context.Context, opts Options) (*Context, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("couldn't acquire context: %w", err)
	}
	if opts.GPU {
		eng, err := wgpu_engine.New(opts.Device, nil)
		if err != nil {
			return nil, fmt.Errorf("couldn't acquire context: %w", err)
		}
		logger.L().Info("acquired compute context", "device", "gpu")
		return &Context{
			opts:  opts,
			gpu:   eng,
			queue: opts.Device.Queue(),
		}, nil
	}

	pool := parallel.NewWorkerPool(opts.Workers)
	c := &Context{
		opts:   opts,
		pool:   pool,
		engine: cpu_engine.New(pool),
	}
	logger.L().Info("acquired compute context", "workers", pool.Workers())
	return c, nil
}

// Close releases the context. Replays that are in progress finish first.
// Close is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.gpu != nil {
		c.gpu.Release()
		c.queue.Release()
	} else {
		c.pool.Close()
	}
	logger.L().Info("released compute context", "replays", c.frames)
	return nil
}

// Replay reconstructs the framebuffer of frame. Cancellation is observed
// between pipeline stages. On error, no partial result is returned.
func (c *Context) Replay(ctx context.Context, frame Frame) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := frame.VRAM
	if source == nil {
		source = vram.Blank()
	} else if len(source) != vram.Size {
		return nil, fmt.Errorf("%w: got %d texels, want %d", vram.ErrSourceSize, len(source), vram.Size)
	}

	log := logger.L()
	c.frames++
	var pgroup profiler.ProfilerGroup = profiler.Nop{}
	if c.opts.Profile {
		pgroup = profiler.NewLogGroup(log, fmt.Sprintf("replay %d", c.frames))
	}
	defer pgroup.End()

	decoder := gp0.Decoder{Logger: log}
	cmds, stats := decoder.Decode(frame.Commands)
	packer := encoding.Packer{Logger: log}
	lists := packer.Pack(cmds)

	if c.gpu != nil {
		// The device runs the whole recording in one submission, so
		// cancellation is only observed before it.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay interrupted: %w", err)
		}
		img, err := c.gpu.Render(c.queue, lists, source, frame.Status, nil)
		if err != nil {
			return nil, err
		}
		return &Result{
			Image:     img,
			Stats:     stats,
			Lists:     lists,
			Saturated: lists.Saturated,
		}, nil
	}

	rec, target := renderer.RenderFull(lists, source, frame.Status, c.engine.FullShaders(), pgroup)
	if err := c.engine.RunRecording(ctx, rec, pgroup); err != nil {
		return nil, fmt.Errorf("replay interrupted: %w", err)
	}
	data, ok := c.engine.Download(target.Output)
	if !ok {
		panic("recording didn't download its output")
	}
	img := image.NewRGBA(image.Rect(0, 0, vram.Width, vram.Height))
	copy(img.Pix, data)

	return &Result{
		Image:     img,
		Stats:     stats,
		Lists:     lists,
		Saturated: lists.Saturated,
	}, nil
}
