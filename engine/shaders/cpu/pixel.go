package cpu

import (
	"sync/atomic"

	"honnef.co/go/gp0replay/vram"
)

type pixelFlags uint32

const (
	pixelBlend pixelFlags = 1 << iota
	pixelForceMask
	pixelCheckMask
)

// color15 converts the low 24 bits of a command word to a 15-bit texel.
func color15(c uint32) uint32 {
	return c>>3&0x1f | (c>>11&0x1f)<<5 | (c>>19&0x1f)<<10
}

// blendAverage returns (bg + fg) / 2 per channel. The mask bit of the result
// is clear.
func blendAverage(bg, fg uint32) uint32 {
	var out uint32
	for shift := uint32(0); shift < 15; shift += 5 {
		b := bg >> shift & 0x1f
		f := fg >> shift & 0x1f
		out |= (b + f) >> 1 << shift
	}
	return out
}

func expand5(c uint32) uint32 {
	return (c*527 + 23) >> 6
}

func rgba8(texel uint32) uint32 {
	r := expand5(texel & 0x1f)
	g := expand5(texel >> 5 & 0x1f)
	b := expand5(texel >> 10 & 0x1f)
	return r | g<<8 | b<<16 | 0xff<<24
}

// writePixel commits color at ix unless a later primitive already owns the
// pixel. Equal orders commit, so a primitive may overwrite itself.
func writePixel(vram32 []uint32, ix uint32, order uint32, color uint32, flags pixelFlags) {
	p := &vram32[ix]
	old := atomic.LoadUint32(p)
	for {
		if vram.PixelOrder(old) > order {
			return
		}
		if flags&pixelCheckMask != 0 && old&vram.MaskBit != 0 {
			return
		}
		c := color
		if flags&pixelBlend != 0 {
			c = blendAverage(old, c)
		}
		if flags&pixelForceMask != 0 {
			c |= vram.MaskBit
		}
		if atomic.CompareAndSwapUint32(p, old, vram.PackPixel(order, uint16(c))) {
			return
		}
		old = atomic.LoadUint32(p)
	}
}
