// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import "structs"

// FillRectRecord is the packed form of a fill rect. Color holds the raw
// command word; Position and Size hold the raw parameter words.
type FillRectRecord struct {
	_ structs.HostLayout

	Order    uint32
	Color    uint32
	Position uint32
	Size     uint32
}

type VertexRecord struct {
	_ structs.HostLayout

	// Position holds two signed 16-bit halves, X in the low half.
	Position uint32
	// UV holds U in bits 0..7 and V in bits 8..15.
	UV    uint32
	Color uint32
}

// Flags of PolyRecord.
const (
	PolyFlagGouraud uint32 = 1 << iota
	PolyFlagTextured
	PolyFlagSemiTransparent
	PolyFlagRawTexture
	// PolyFlagQuadSecond marks the (v1, v2, v3) half of a quad.
	PolyFlagQuadSecond
)

// PolyRecord is a single triangle. Quads are split into two records at pack
// time.
type PolyRecord struct {
	_ structs.HostLayout

	Order    uint32
	AttrsIdx uint32
	// Color holds the raw leading command word, opcode included.
	Color uint32
	// TexInfo holds the CLUT in the low and the texpage in the high half.
	TexInfo  uint32
	Flags    uint32
	Vertices [3]VertexRecord
}

// AttributesRecord is a snapshot of the rendering attributes in effect for
// the polygons that reference it. Each field holds the raw E1..E6 word.
type AttributesRecord struct {
	_ structs.HostLayout

	Texpage             uint32
	TexWindow           uint32
	DrawAreaTopLeft     uint32
	DrawAreaBottomRight uint32
	DrawingOffset       uint32
	Mask                uint32
}

// DefaultAttributes is in effect until the stream changes it: the drawing
// area covers all of VRAM and the drawing offset is zero.
var DefaultAttributes = AttributesRecord{
	Texpage:             0xe1000000,
	TexWindow:           0xe2000000,
	DrawAreaTopLeft:     0xe3000000,
	DrawAreaBottomRight: 0xe4000000 | 511<<10 | 1023,
	DrawingOffset:       0xe5000000,
	Mask:                0xe6000000,
}

// DrawArea returns the inclusive drawing area corners.
func (a *AttributesRecord) DrawArea() (x1, y1, x2, y2 int32) {
	return int32(a.DrawAreaTopLeft & 0x3ff), int32(a.DrawAreaTopLeft >> 10 & 0x1ff),
		int32(a.DrawAreaBottomRight & 0x3ff), int32(a.DrawAreaBottomRight >> 10 & 0x1ff)
}

// Offset returns the signed drawing offset.
func (a *AttributesRecord) Offset() (x, y int32) {
	return int32(a.DrawingOffset<<21) >> 21, int32(a.DrawingOffset<<10) >> 21
}

func (a *AttributesRecord) MaskSetting() (forceSet, checkBeforeDraw bool) {
	return a.Mask&1 != 0, a.Mask&2 != 0
}
