// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu provides CPU implementations of the compute shaders.
//
// Every kernel runs a single workgroup of WG_SIZE invocations and mirrors
// its WGSL counterpart. Workgroups of the same dispatch may run
// concurrently; the only shared mutable state is the working image, which
// is written exclusively through writePixel.
package cpu

import (
	"fmt"
	"unsafe"

	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/safeish"
)

const WG_SIZE = renderer.WG_SIZE

type CPUBinding interface {
	// One of CPUBuffer
}

type CPUBuffer []byte

// XXX move this into safeish
func fromBytes[E any, T *E](b []byte) T {
	if uintptr(len(b)) < unsafe.Sizeof(*new(E)) {
		panic(fmt.Sprintf(
			"buffer of size %d cannot represent object of size %d", len(b), unsafe.Sizeof(*new(E))))
	}

	return safeish.Cast[T](&b[0])
}

func u32s(b CPUBinding) []uint32 {
	return safeish.SliceCast[[]uint32](b.(CPUBuffer))
}

// InitVram copies the snapshot into the working image at order 0. Each
// invocation converts two texels.
func InitVram(wgID uint32, resources []CPUBinding) {
	config := fromBytes[renderer.ConfigUniform](resources[0].(CPUBuffer))
	vram16 := u32s(resources[1])
	vram32 := u32s(resources[2])

	n := config.Width * config.Height / 2
	for local := range uint32(WG_SIZE) {
		ix := wgID*WG_SIZE + local
		if ix >= n {
			return
		}
		pair := vram16[ix]
		vram32[2*ix] = pair & 0xffff
		vram32[2*ix+1] = pair >> 16
	}
}

func FillRect(wgID uint32, resources []CPUBinding) {
	config := fromBytes[renderer.ConfigUniform](resources[0].(CPUBuffer))
	rects := safeish.SliceCast[[]encoding.FillRectRecord](resources[1].(CPUBuffer))
	vram32 := u32s(resources[2])

	for local := range uint32(WG_SIZE) {
		ix := wgID*WG_SIZE + local
		if ix >= config.FillRectCount {
			return
		}
		fillRect(config, &rects[ix], vram32)
	}
}

func fillRect(config *renderer.ConfigUniform, rect *encoding.FillRectRecord, vram32 []uint32) {
	color := color15(rect.Color)
	x0 := rect.Position & (config.Width - 1)
	y0 := rect.Position >> 16 & (config.Height - 1)
	width := min(rect.Size&0xffff, config.Width)
	height := min(rect.Size>>16, config.Height)

	for dy := range height {
		y := (y0 + dy) & (config.Height - 1)
		row := y * config.Width
		for dx := range width {
			x := (x0 + dx) & (config.Width - 1)
			writePixel(vram32, row+x, rect.Order, color, 0)
		}
	}
}

// RenderPoly draws one opaque triangle per invocation. Opaque writes don't
// depend on the pixel they replace, so triangles may race freely.
func RenderPoly(wgID uint32, resources []CPUBinding) {
	config := fromBytes[renderer.ConfigUniform](resources[0].(CPUBuffer))
	polys := safeish.SliceCast[[]encoding.PolyRecord](resources[1].(CPUBuffer))
	attributes := safeish.SliceCast[[]encoding.AttributesRecord](resources[2].(CPUBuffer))
	vram32 := u32s(resources[3])

	for local := range uint32(WG_SIZE) {
		ix := wgID*WG_SIZE + local
		if ix >= config.PolyCount {
			return
		}
		poly := &polys[ix]
		rasterize(config, poly, &attributes[poly.AttrsIdx], vram32)
	}
}

// RenderTransparentPoly composites the records that read the pixel they
// replace. Each workgroup owns one tile of TILE_WIDTH×TILE_HEIGHT pixels and
// visits the records in list order, which is ascending order index, so
// every pixel sees the same sequence of writes as a sequential replay.
//
// The WGSL kernel runs one invocation per pixel of the tile; clipping each
// record to the tile produces the same writes per pixel.
func RenderTransparentPoly(wgID uint32, resources []CPUBinding) {
	config := fromBytes[renderer.ConfigUniform](resources[0].(CPUBuffer))
	polys := safeish.SliceCast[[]encoding.PolyRecord](resources[1].(CPUBuffer))
	attributes := safeish.SliceCast[[]encoding.AttributesRecord](resources[2].(CPUBuffer))
	vram32 := u32s(resources[3])

	tile := tileBounds(config, wgID)
	for ix := range config.TransparentPolyCount {
		poly := &polys[ix]
		t, ok := setupTriangle(config, poly, &attributes[poly.AttrsIdx])
		if !ok || t.bounds.intersect(tile).empty() {
			continue
		}
		t.draw(config, vram32, tile)
	}
}

func tileBounds(config *renderer.ConfigUniform, wgID uint32) bounds {
	tilesX := config.Width / renderer.TILE_WIDTH
	x := int64(wgID%tilesX) * renderer.TILE_WIDTH
	y := int64(wgID/tilesX) * renderer.TILE_HEIGHT
	return bounds{
		minX: x,
		minY: y,
		maxX: x + renderer.TILE_WIDTH - 1,
		maxY: y + renderer.TILE_HEIGHT - 1,
	}
}

// Resolve converts the working image to RGBA8, discarding the order tags.
func Resolve(wgID uint32, resources []CPUBinding) {
	config := fromBytes[renderer.ConfigUniform](resources[0].(CPUBuffer))
	vram32 := u32s(resources[1])
	output := u32s(resources[2])

	n := config.Width * config.Height
	for local := range uint32(WG_SIZE) {
		ix := wgID*WG_SIZE + local
		if ix >= n {
			return
		}
		output[ix] = rgba8(vram32[ix] & 0xffff)
	}
}
