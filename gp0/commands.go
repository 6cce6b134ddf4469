package gp0

import (
	"fmt"

	"honnef.co/go/gp0replay/jmath"
)

// Class is the command class stored in bits 31..29 of a command word.
type Class uint8

const (
	ClassMisc Class = iota
	ClassPolygon
	ClassLine
	ClassRect
	ClassCopyVramToVram
	ClassCopyCpuToVram
	ClassCopyVramToCpu
	ClassAttribute
)

var classNames = [...]string{
	ClassMisc:           "misc",
	ClassPolygon:        "polygon",
	ClassLine:           "line",
	ClassRect:           "rect",
	ClassCopyVramToVram: "vram-to-vram",
	ClassCopyCpuToVram:  "cpu-to-vram",
	ClassCopyVramToCpu:  "vram-to-cpu",
	ClassAttribute:      "attribute",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

func ClassOf(word uint32) Class { return Class(word >> 29) }

// SubOpcode returns bits 28..24 of a command word.
func SubOpcode(word uint32) uint8 { return uint8(word>>24) & 0x1f }

// Polygon flag bits of the leading word.
const (
	FlagRawTexture      = 1 << 24
	FlagSemiTransparent = 1 << 25
	FlagTextured        = 1 << 26
	FlagQuad            = 1 << 27
	FlagGouraud         = 1 << 28
)

// Command is a decoded GP0 command. It is one of *FillRect, *RenderPoly and
// *SetAttribute.
type Command interface {
	isCommand()
}

func (*FillRect) isCommand()     {}
func (*RenderPoly) isCommand()   {}
func (*SetAttribute) isCommand() {}

type Point struct {
	X, Y int16
}

// PointFromWord sign-extends both 16-bit halves of a vertex word.
func PointFromWord(w uint32) Point {
	return Point{
		X: int16(jmath.SignExtend(w&0xffff, 16)),
		Y: int16(jmath.SignExtend(w>>16, 16)),
	}
}

func (p Point) Word() uint32 {
	return uint32(uint16(p.X)) | uint32(uint16(p.Y))<<16
}

// Color is a 24-bit colour as stored in the low three bytes of a word.
type Color struct {
	R, G, B uint8
}

func ColorFromWord(w uint32) Color {
	return Color{R: uint8(w), G: uint8(w >> 8), B: uint8(w >> 16)}
}

func (c Color) Word() uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16
}

type UV struct {
	U, V uint8
}

func UVFromWord(w uint32) UV {
	return UV{U: uint8(w), V: uint8(w >> 8)}
}

func (uv UV) Word() uint32 {
	return uint32(uv.U) | uint32(uv.V)<<8
}

// Clut is the VRAM position of a colour lookup table.
type Clut struct {
	X, Y uint16
}

func ClutFromRaw(raw uint16) Clut {
	return Clut{
		X: (raw & 0x3f) * 16,
		Y: (raw >> 6) & 0x1ff,
	}
}

func (c Clut) Raw() uint16 {
	return c.X/16 | c.Y<<6
}

// Texpage describes a texture page as encoded in a polygon's texpage
// attribute or in the draw mode setting.
type Texpage struct {
	BaseX        uint16
	BaseY        uint16
	Transparency uint8
	Depth        uint8
	Disable      bool
}

func TexpageFromRaw(raw uint16) Texpage {
	return Texpage{
		BaseX:        (raw & 0xf) * 64,
		BaseY:        ((raw >> 4) & 1) * 256,
		Transparency: uint8(raw>>5) & 3,
		Depth:        uint8(raw>>7) & 3,
		Disable:      raw&(1<<11) != 0,
	}
}

func (tp Texpage) Raw() uint16 {
	raw := tp.BaseX/64 | (tp.BaseY/256)<<4 | uint16(tp.Transparency)<<5 | uint16(tp.Depth)<<7
	if tp.Disable {
		raw |= 1 << 11
	}
	return raw
}

type Rect struct {
	X, Y          uint16
	Width, Height uint16
}

// FillRect fills a VRAM rectangle with a solid colour, ignoring the drawing
// area, the drawing offset and the mask settings.
type FillRect struct {
	Order uint32
	Color Color
	Rect  Rect
}

type Vertex struct {
	Pos   Point
	Color Option[Color]
	UV    Option[UV]
}

// RenderPoly is a triangle or quad. Quads consume two order indices, Order
// and Order+1, one per implicit triangle.
type RenderPoly struct {
	Order    uint32
	Opcode   uint8
	Color    Color
	Vertices []Vertex

	Gouraud         bool
	Textured        bool
	Opaque          bool
	TextureBlending bool

	Clut    Option[Clut]
	Texpage Option[Texpage]
}

func (cmd *RenderPoly) IsQuad() bool { return len(cmd.Vertices) == 4 }

// Word reconstructs the leading command word.
func (cmd *RenderPoly) Word() uint32 {
	return uint32(cmd.Opcode)<<24 | cmd.Color.Word()
}

// VertexColor returns the colour of vertex i. Vertex 0 and all vertices of
// flat polygons use the base colour.
func (cmd *RenderPoly) VertexColor(i int) Color {
	return cmd.Vertices[i].Color.UnwrapOr(cmd.Color)
}

// Rendering attribute parameters, the sub-opcode of a class 7 command.
const (
	AttrDrawMode            = 0x01
	AttrTextureWindow       = 0x02
	AttrDrawAreaTopLeft     = 0x03
	AttrDrawAreaBottomRight = 0x04
	AttrDrawingOffset       = 0x05
	AttrMaskSetting         = 0x06
)

// SetAttribute changes one rendering attribute. Word is the full command
// word; the accessor matching Param decodes it.
type SetAttribute struct {
	Param uint8
	Word  uint32
}

type DrawMode struct {
	Texpage       Texpage
	Dither        bool
	DrawToDisplay bool
}

func (cmd *SetAttribute) DrawMode() DrawMode {
	w := cmd.Word
	return DrawMode{
		Texpage:       TexpageFromRaw(uint16(w&0x1ff) | uint16(w>>11&1)<<11),
		Dither:        w&(1<<9) != 0,
		DrawToDisplay: w&(1<<10) != 0,
	}
}

// TextureWindow holds the mask and offset, each in 8 pixel steps.
type TextureWindow struct {
	MaskX, MaskY     uint8
	OffsetX, OffsetY uint8
}

func (cmd *SetAttribute) TextureWindow() TextureWindow {
	w := cmd.Word
	return TextureWindow{
		MaskX:   uint8(w) & 0x1f,
		MaskY:   uint8(w>>5) & 0x1f,
		OffsetX: uint8(w>>10) & 0x1f,
		OffsetY: uint8(w>>15) & 0x1f,
	}
}

// DrawAreaCorner decodes E3 and E4.
func (cmd *SetAttribute) DrawAreaCorner() (x, y uint16) {
	return uint16(cmd.Word & 0x3ff), uint16(cmd.Word>>10) & 0x1ff
}

// DrawingOffset decodes the two 11-bit signed halves of E5.
func (cmd *SetAttribute) DrawingOffset() (x, y int16) {
	return int16(jmath.SignExtend(cmd.Word&0x7ff, 11)), int16(jmath.SignExtend(cmd.Word>>11&0x7ff, 11))
}

// MaskSetting decodes E6.
func (cmd *SetAttribute) MaskSetting() (forceSet, checkBeforeDraw bool) {
	return cmd.Word&1 != 0, cmd.Word&2 != 0
}
