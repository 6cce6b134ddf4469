package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"honnef.co/go/gp0replay"
	"honnef.co/go/gp0replay/vram"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	commands := filepath.Join(dir, "commands.txt")
	if err := os.WriteFile(commands, []byte("02ff00ff\n00000000\n00020002\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.png")
	preview := filepath.Join(dir, "preview.png")

	err := run(context.Background(), config{
		commands: commands,
		out:      out,
		preview:  preview,
		scale:    2,
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != vram.Width*2 || b.Dy() != vram.Height*2 {
		t.Fatalf("got bounds %v, want %dx%d", b, vram.Width*2, vram.Height*2)
	}
	want := color.RGBAModel.Convert(color.RGBA{0xff, 0, 0xff, 0xff})
	for _, p := range [][2]int{{0, 0}, {3, 3}} {
		if got := color.RGBAModel.Convert(img.At(p[0], p[1])); got != want {
			t.Errorf("pixel %v = %v, want %v", p, got, want)
		}
	}
	if got := color.RGBAModel.Convert(img.At(4, 4)); got != (color.RGBA{0, 0, 0, 0xff}) {
		t.Errorf("pixel (4, 4) = %v, want black", got)
	}

	if _, err := os.Stat(preview); err != nil {
		t.Errorf("preview wasn't written: %s", err)
	}
}

func TestRunInvalidStatus(t *testing.T) {
	if err := run(context.Background(), config{status: "xyz", scale: 1}); err == nil {
		t.Error("expected an error for an invalid status")
	}
}

func writeCommands(t *testing.T, dir string) string {
	t.Helper()
	commands := filepath.Join(dir, "commands.txt")
	if err := os.WriteFile(commands, []byte("02ff00ff\n00000000\n00020002\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return commands
}

func TestRunCrop(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")
	err := run(context.Background(), config{
		commands: writeCommands(t, dir),
		out:      out,
		scale:    1,
		crop:     "1,1,4,3",
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("got bounds %v, want 4x3", b)
	}
	b := img.Bounds()
	if got := color.RGBAModel.Convert(img.At(b.Min.X, b.Min.Y)); got != (color.RGBA{0xff, 0, 0xff, 0xff}) {
		t.Errorf("top left pixel = %v, want magenta", got)
	}
	if got := color.RGBAModel.Convert(img.At(b.Min.X+1, b.Min.Y+1)); got != (color.RGBA{0, 0, 0, 0xff}) {
		t.Errorf("pixel (2, 2) = %v, want black", got)
	}
}

func TestRunCropOutsideVRAM(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), config{
		commands: writeCommands(t, dir),
		out:      filepath.Join(dir, "out.png"),
		scale:    1,
		crop:     "2000,0,10,10",
	})
	if err == nil {
		t.Error("expected an error for a crop outside of VRAM")
	}
}

func TestParseCrop(t *testing.T) {
	r, err := parseCrop("16, 8, 32, 4")
	if err != nil {
		t.Fatal(err)
	}
	if want := image.Rect(16, 8, 48, 12); r != want {
		t.Errorf("got %v, want %v", r, want)
	}
	for _, s := range []string{"", "1,2,3", "a,0,1,1", "0,0,0,5", "-1,0,4,4"} {
		if _, err := parseCrop(s); err == nil {
			t.Errorf("parseCrop(%q) succeeded", s)
		}
	}
}

func TestRunGPUWithoutDevice(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), config{
		commands: writeCommands(t, dir),
		out:      filepath.Join(dir, "out.png"),
		scale:    1,
		opts:     gp0replay.Options{GPU: true},
	})
	if !errors.Is(err, gp0replay.ErrNoDevice) {
		t.Errorf("got error %v, want ErrNoDevice", err)
	}
}
