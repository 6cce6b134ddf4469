// Command gp0replay replays a captured GP0 command stream onto a VRAM
// snapshot and writes the reconstructed VRAM as a PNG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"honnef.co/go/gp0replay"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/wgpu"
)

func main() {
	var (
		commands string
		snapshot string
		status   string
		out      string
		preview  string
		scale    int
		crop     string
		workers  int
		gpu      bool
		profile  bool
		verbose  bool
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] -commands <file> -out <file.png>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&commands, "commands", "", "Read GP0 words from `file`, one hex word per line")
	flag.StringVar(&snapshot, "vram", "", "Start from the raw VRAM snapshot in `file` (default all black)")
	flag.StringVar(&status, "status", "", "GPUSTAT at the start of the capture, in hex")
	flag.StringVar(&out, "out", "", "Write the replayed VRAM to `file`")
	flag.StringVar(&preview, "preview", "", "Write the unmodified snapshot to `file`")
	flag.IntVar(&scale, "scale", 1, "Scale images by an integer `factor`")
	flag.StringVar(&crop, "crop", "", "Only write the `x,y,w,h` region of VRAM")
	flag.IntVar(&workers, "workers", 0, "Number of worker goroutines (default GOMAXPROCS)")
	flag.BoolVar(&gpu, "gpu", false, "Replay on the GPU")
	flag.BoolVar(&profile, "profile", false, "Log the duration of pipeline stages")
	flag.BoolVar(&verbose, "v", false, "Be verbose")
	flag.Parse()

	if len(flag.Args()) != 0 || commands == "" || out == "" || scale < 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose || profile {
		level = slog.LevelDebug
	}
	gp0replay.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := gp0replay.Options{Workers: workers, Profile: profile, GPU: gpu}
	if gpu {
		dev, release, err := openDevice()
		if err != nil {
			gp0replay.Logger().Warn("no GPU available", "err", err)
		} else {
			defer release()
			opts.Device = dev
		}
	}

	err := run(ctx, config{
		commands: commands,
		snapshot: snapshot,
		status:   status,
		out:      out,
		preview:  preview,
		scale:    scale,
		crop:     crop,
		opts:     opts,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

type config struct {
	commands string
	snapshot string
	status   string
	out      string
	preview  string
	scale    int
	crop     string
	opts     gp0replay.Options
}

// openDevice requests a device from the preferred adapter.
func openDevice() (*wgpu.Device, func(), error) {
	instance := wgpu.CreateInstance(wgpu.InstanceDescriptor{})
	adapter, err := instance.RequestAdapter(wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, nil, fmt.Errorf("couldn't get adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, nil, fmt.Errorf("couldn't get device: %w", err)
	}
	return dev, func() {
		dev.Release()
		adapter.Release()
		instance.Release()
	}, nil
}

// parseCrop parses a region in the form x,y,w,h.
func parseCrop(s string) (image.Rectangle, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid crop %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 0 {
			return image.Rectangle{}, fmt.Errorf("invalid crop %q: bad field %q", s, f)
		}
		v[i] = n
	}
	r := image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("invalid crop %q: empty region", s)
	}
	return r, nil
}

func run(ctx context.Context, cfg config) error {
	frame := gp0replay.Frame{Status: gp0.DefaultStatus}
	if cfg.status != "" {
		s, err := strconv.ParseUint(cfg.status, 16, 32)
		if err != nil {
			return fmt.Errorf("invalid status: %w", err)
		}
		frame.Status = gp0.Status(s)
	}

	region := image.Rect(0, 0, vram.Width, vram.Height)
	if cfg.crop != "" {
		r, err := parseCrop(cfg.crop)
		if err != nil {
			return err
		}
		region = r
	}

	f, err := os.Open(cfg.commands)
	if err != nil {
		return err
	}
	frame.Commands, err = gp0.ParseWords(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("couldn't parse %s: %w", cfg.commands, err)
	}

	if cfg.snapshot != "" {
		b, err := os.ReadFile(cfg.snapshot)
		if err != nil {
			return err
		}
		frame.VRAM, err = vram.LoadSource(b)
		if err != nil {
			return fmt.Errorf("couldn't load %s: %w", cfg.snapshot, err)
		}
	}

	if cfg.preview != "" {
		src := frame.VRAM
		if src == nil {
			src = vram.Blank()
		}
		if err := writePNG(cfg.preview, vram.Crop(vram.Preview(src), region), cfg.scale); err != nil {
			return err
		}
	}

	c, err := gp0replay.Acquire(ctx, cfg.opts)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Replay(ctx, frame)
	if err != nil {
		return err
	}
	gp0replay.Logger().Info("replayed frame",
		"decoded", res.Stats.Decoded,
		"skipped", res.Stats.Skipped,
		"anomalies", res.Stats.Anomalies,
		"truncated", res.Stats.Truncated,
		"oversized", res.Lists.Oversized,
		"saturated", res.Saturated)
	if res.Saturated > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d primitives exceeded the order range and may be drawn out of order\n", res.Saturated)
	}

	return writePNG(cfg.out, vram.Crop(res.Image, region), cfg.scale)
}

func writePNG(path string, img *image.RGBA, scale int) error {
	if img.Bounds().Empty() {
		return errors.New("crop region lies outside of VRAM")
	}
	var dst image.Image = img
	if scale > 1 {
		b := img.Bounds()
		scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		dst = scaled
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
