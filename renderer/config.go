// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"structs"

	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/jmath"
	"honnef.co/go/gp0replay/vram"
)

// WG_SIZE is the number of invocations per workgroup of every kernel.
const WG_SIZE = 256

// The transparent poly stage assigns one tile of pixels to each workgroup,
// one pixel per invocation.
const (
	TILE_WIDTH  = 16
	TILE_HEIGHT = WG_SIZE / TILE_WIDTH
)

type WorkgroupSize [3]uint32

// ConfigUniform is the uniform shared by all stages.
//
// This data structure must be kept in sync with the definition in
// `engine/shaders/src/shared/config.wgsl`.
type ConfigUniform struct {
	_ structs.HostLayout

	// GPUSTAT at the start of the capture.
	Status               uint32
	FillRectCount        uint32
	PolyCount            uint32
	TransparentPolyCount uint32
	AttributesCount      uint32
	// Width of the VRAM in pixels.
	Width uint32
	// Height of the VRAM in pixels.
	Height uint32
	_      uint32
}

func NewConfigUniform(lists *encoding.Lists, status gp0.Status) ConfigUniform {
	return ConfigUniform{
		Status:               uint32(status),
		FillRectCount:        uint32(len(lists.FillRects)),
		PolyCount:            uint32(len(lists.Polys)),
		TransparentPolyCount: uint32(len(lists.TransparentPolys)),
		AttributesCount:      uint32(len(lists.Attributes)),
		Width:                vram.Width,
		Height:               vram.Height,
	}
}

type WorkgroupCounts struct {
	// InitVram converts two texels per invocation.
	InitVram   WorkgroupSize
	FillRect   WorkgroupSize
	RenderPoly WorkgroupSize
	// RenderTransparentPoly runs one workgroup per tile of the VRAM, or none
	// if there are no records.
	RenderTransparentPoly WorkgroupSize
	Resolve               WorkgroupSize
}

func linear(n uint32) WorkgroupSize {
	return WorkgroupSize{jmath.DivCeil(n, WG_SIZE), 1, 1}
}

func tiles(n uint32) WorkgroupSize {
	if n == 0 {
		return WorkgroupSize{0, 1, 1}
	}
	return WorkgroupSize{(vram.Width / TILE_WIDTH) * (vram.Height / TILE_HEIGHT), 1, 1}
}

func NewWorkgroupCounts(config *ConfigUniform) WorkgroupCounts {
	return WorkgroupCounts{
		InitVram:              WorkgroupSize{vram.Size / WG_SIZE / 2, 1, 1},
		FillRect:              linear(config.FillRectCount),
		RenderPoly:            linear(config.PolyCount),
		RenderTransparentPoly: tiles(config.TransparentPolyCount),
		Resolve:               WorkgroupSize{vram.Size / WG_SIZE, 1, 1},
	}
}

// Total returns the number of workgroups of a dispatch.
func (s WorkgroupSize) Total() uint32 {
	return s[0] * s[1] * s[2]
}
