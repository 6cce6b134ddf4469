// Package vram models the 1024×512 PlayStation VRAM: the 16-bit snapshot a
// replay starts from, the tagged 32-bit working image the kernels write,
// and their conversion to host images.
package vram

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"honnef.co/go/gp0replay/gp0"
)

const (
	Width  = 1024
	Height = 512
	Size   = Width * Height
	// SourceBytes is the size of a raw snapshot: one little-endian 16-bit
	// texel per pixel, row-major.
	SourceBytes = Size * 2
)

// MaskBit is bit 15 of a texel.
const MaskBit = 1 << 15

var ErrSourceSize = errors.New("vram: snapshot has the wrong size")

// Source is a VRAM snapshot, the image at order 0. It is never written to.
type Source []uint16

// LoadSource decodes a raw snapshot.
func LoadSource(b []byte) (Source, error) {
	if len(b) != SourceBytes {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSourceSize, len(b), SourceBytes)
	}
	src := make(Source, Size)
	for i := range src {
		src[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return src, nil
}

// Blank returns an all-zero snapshot.
func Blank() Source {
	return make(Source, Size)
}

// Bytes encodes the snapshot in its raw form.
func (src Source) Bytes() []byte {
	out := make([]byte, 2*len(src))
	for i, t := range src {
		binary.LittleEndian.PutUint16(out[2*i:], t)
	}
	return out
}

// PackPixel builds a working pixel from an order index and a 16-bit texel.
func PackPixel(order uint32, color uint16) uint32 {
	return order<<16 | uint32(color)
}

func PixelOrder(p uint32) uint32 { return p >> 16 }
func PixelColor(p uint32) uint16 { return uint16(p) }

// Color15FromRGB24 drops the low three bits of each channel. The mask bit
// is left clear.
func Color15FromRGB24(c gp0.Color) uint16 {
	return uint16(c.R>>3) | uint16(c.G>>3)<<5 | uint16(c.B>>3)<<10
}

// RGB24FromColor15 expands each 5-bit channel to 8 bits.
func RGB24FromColor15(c uint16) (r, g, b uint8) {
	expand := func(c5 uint16) uint8 {
		return uint8((uint32(c5)*527 + 23) >> 6)
	}
	return expand(c & 0x1f), expand(c >> 5 & 0x1f), expand(c >> 10 & 0x1f)
}

func newImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, Width, Height))
}

func putTexel(img *image.RGBA, i int, texel uint16) {
	r, g, b := RGB24FromColor15(texel)
	pix := img.Pix[4*i : 4*i+4 : 4*i+4]
	pix[0], pix[1], pix[2], pix[3] = r, g, b, 0xff
}

// Preview converts a snapshot to RGBA.
func Preview(src Source) *image.RGBA {
	img := newImage()
	for i, t := range src {
		putTexel(img, i, t)
	}
	return img
}

// Crop returns the part of img inside r, sharing its pixels.
func Crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	return img.SubImage(r.Intersect(img.Bounds())).(*image.RGBA)
}
