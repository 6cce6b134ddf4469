package gp0

import "fmt"

// Status is the GPUSTAT register captured alongside a command stream. The
// pipeline treats it as opaque and copies it into the config uniform; the
// accessors exist for diagnostics.
type Status uint32

// DefaultStatus is GPUSTAT after a GPU reset.
const DefaultStatus Status = 0x14802000

func (s Status) bit(n uint) bool { return s&(1<<n) != 0 }

func (s Status) Texpage() Texpage {
	return TexpageFromRaw(uint16(s&0x1ff) | uint16(s>>15&1)<<11)
}

func (s Status) Dithering() bool     { return s.bit(9) }
func (s Status) DrawToDisplay() bool { return s.bit(10) }
func (s Status) ForceSetMask() bool  { return s.bit(11) }
func (s Status) CheckMask() bool     { return s.bit(12) }
func (s Status) Interlaced() bool    { return s.bit(22) }
func (s Status) PAL() bool           { return s.bit(20) }

// DisplayDepth24 reports whether the display area uses 24-bit colour.
func (s Status) DisplayDepth24() bool  { return s.bit(21) }
func (s Status) DisplayDisabled() bool { return s.bit(23) }

// HorizontalRes returns the horizontal display resolution in pixels.
func (s Status) HorizontalRes() int {
	if s.bit(16) {
		return 368
	}
	return [...]int{256, 320, 512, 640}[s>>17&3]
}

// VerticalRes returns the vertical display resolution in lines.
func (s Status) VerticalRes() int {
	if s.bit(19) && s.Interlaced() {
		return 480
	}
	return 240
}

type DMADirection uint8

const (
	DMAOff DMADirection = iota
	DMAFifo
	DMACPUToGP0
	DMAVRAMToCPU
)

func (d DMADirection) String() string {
	return [...]string{"off", "fifo", "cpu-to-gp0", "vram-to-cpu"}[d&3]
}

func (s Status) DMADirection() DMADirection { return DMADirection(s>>29) & 3 }

func (s Status) String() string {
	tp := s.Texpage()
	return fmt.Sprintf(
		"GPUSTAT(%#08x texpage=%d,%d semi=%d depth=%d dither=%t mask=%t/%t res=%dx%d pal=%t disabled=%t dma=%s)",
		uint32(s), tp.BaseX, tp.BaseY, tp.Transparency, tp.Depth, s.Dithering(),
		s.ForceSetMask(), s.CheckMask(), s.HorizontalRes(), s.VerticalRes(),
		s.PAL(), s.DisplayDisabled(), s.DMADirection(),
	)
}
