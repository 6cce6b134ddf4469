// Package encoding packs decoded GP0 commands into the fixed-stride record
// lists consumed by the compute kernels.
package encoding

import (
	"fmt"
	"log/slog"
	"unsafe"

	"honnef.co/go/curve"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/internal/logger"
	"honnef.co/go/safeish"
)

// MaxOrder is the largest order index the 16-bit pixel tag can hold.
const MaxOrder = 0xffff

// Polygons whose vertices are further apart than this are not drawn by the
// hardware.
const (
	maxPolyWidth  = 1023
	maxPolyHeight = 511
)

type Lists struct {
	FillRects []FillRectRecord
	// Polys are opaque triangles that don't test the mask bit. Their
	// result doesn't depend on the pixel they replace.
	Polys []PolyRecord
	// TransparentPolys are the triangles whose result depends on the pixel
	// they replace: semi-transparent ones and those drawn while the mask
	// bit is checked. They are in ascending order index.
	TransparentPolys []PolyRecord
	Attributes       []AttributesRecord

	// Oversized counts triangles dropped for exceeding the hardware size
	// limit. They keep their order index.
	Oversized int
	// Saturated counts records whose order index was clamped to MaxOrder.
	Saturated int
}

// List is one record list in the form uploaded to the engine. An empty list
// still carries one zeroed placeholder record so that the buffer binding is
// valid; Count is 0 in that case.
type List struct {
	Data   []byte
	Stride uint32
	Count  uint32
}

func makeList[T any](records []T) List {
	stride := uint32(unsafe.Sizeof(*new(T)))
	if len(records) == 0 {
		return List{Data: make([]byte, stride), Stride: stride}
	}
	return List{
		Data:   safeish.SliceCast[[]byte](records),
		Stride: stride,
		Count:  uint32(len(records)),
	}
}

func (l *Lists) FillRectList() List        { return makeList(l.FillRects) }
func (l *Lists) PolyList() List            { return makeList(l.Polys) }
func (l *Lists) TransparentPolyList() List { return makeList(l.TransparentPolys) }
func (l *Lists) AttributesList() List      { return makeList(l.Attributes) }

// Pack packs cmds using the package logger.
func Pack(cmds []gp0.Command) *Lists {
	return (&Packer{}).Pack(cmds)
}

// Packer buckets commands into record lists. The zero value is ready to use.
type Packer struct {
	Logger *slog.Logger
}

type packState struct {
	lists    *Lists
	current  AttributesRecord
	snapshot bool
}

// Pack buckets fill rects, opaque polygons, translucent polygons and
// attribute snapshots. Order indices are taken from the commands unchanged,
// except that indices above MaxOrder saturate.
func (p *Packer) Pack(cmds []gp0.Command) *Lists {
	log := p.Logger
	if log == nil {
		log = logger.L()
	}
	st := packState{
		lists:    &Lists{},
		current:  DefaultAttributes,
		snapshot: true,
	}
	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case *gp0.SetAttribute:
			st.setAttribute(cmd)
		case *gp0.FillRect:
			st.fillRect(cmd)
		case *gp0.RenderPoly:
			st.renderPoly(cmd)
		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	lists := st.lists
	if lists.Saturated > 0 {
		log.Warn("order indices exceed the pixel tag range, saturating",
			"records", lists.Saturated, "max", MaxOrder)
	}
	if lists.Oversized > 0 {
		log.Debug("dropped oversized triangles", "count", lists.Oversized)
	}
	log.Debug("packed command lists",
		"fill_rects", len(lists.FillRects),
		"polys", len(lists.Polys),
		"transparent_polys", len(lists.TransparentPolys),
		"attributes", len(lists.Attributes))
	return lists
}

func (st *packState) order(o uint32) uint32 {
	if o > MaxOrder {
		st.lists.Saturated++
		return MaxOrder
	}
	return o
}

func (st *packState) setAttribute(cmd *gp0.SetAttribute) {
	switch cmd.Param {
	case gp0.AttrDrawMode:
		st.current.Texpage = cmd.Word
	case gp0.AttrTextureWindow:
		st.current.TexWindow = cmd.Word
	case gp0.AttrDrawAreaTopLeft:
		st.current.DrawAreaTopLeft = cmd.Word
	case gp0.AttrDrawAreaBottomRight:
		st.current.DrawAreaBottomRight = cmd.Word
	case gp0.AttrDrawingOffset:
		st.current.DrawingOffset = cmd.Word
	case gp0.AttrMaskSetting:
		st.current.Mask = cmd.Word
	default:
		panic(fmt.Sprintf("invalid attribute %#x", cmd.Param))
	}
	st.snapshot = true
}

func (st *packState) fillRect(cmd *gp0.FillRect) {
	st.lists.FillRects = append(st.lists.FillRects, FillRectRecord{
		Order:    st.order(cmd.Order),
		Color:    0x02<<24 | cmd.Color.Word(),
		Position: uint32(cmd.Rect.X) | uint32(cmd.Rect.Y)<<16,
		Size:     uint32(cmd.Rect.Width) | uint32(cmd.Rect.Height)<<16,
	})
}

func (st *packState) renderPoly(cmd *gp0.RenderPoly) {
	if st.snapshot {
		st.lists.Attributes = append(st.lists.Attributes, st.current)
		st.snapshot = false
	}

	var flags, texInfo uint32
	if cmd.Gouraud {
		flags |= PolyFlagGouraud
	}
	if cmd.Textured {
		flags |= PolyFlagTextured
		if !cmd.TextureBlending {
			flags |= PolyFlagRawTexture
		}
		texInfo = uint32(cmd.Clut.Unwrap().Raw()) | uint32(cmd.Texpage.Unwrap().Raw())<<16
	}
	if !cmd.Opaque {
		flags |= PolyFlagSemiTransparent
	}

	var verts [4]VertexRecord
	for i, v := range cmd.Vertices {
		verts[i] = VertexRecord{
			Position: v.Pos.Word(),
			UV:       v.UV.UnwrapOr(gp0.UV{}).Word(),
			Color:    cmd.VertexColor(i).Word(),
		}
	}

	rec := PolyRecord{
		Order:    cmd.Order,
		AttrsIdx: uint32(len(st.lists.Attributes) - 1),
		Color:    cmd.Word(),
		TexInfo:  texInfo,
		Flags:    flags,
		Vertices: [3]VertexRecord{verts[0], verts[1], verts[2]},
	}
	_, check := st.current.MaskSetting()
	readsPixel := !cmd.Opaque || check
	st.emitTriangle(rec, readsPixel)
	if cmd.IsQuad() {
		rec.Order = cmd.Order + 1
		rec.Flags |= PolyFlagQuadSecond
		rec.Vertices = [3]VertexRecord{verts[1], verts[2], verts[3]}
		st.emitTriangle(rec, readsPixel)
	}
}

func (st *packState) emitTriangle(rec PolyRecord, readsPixel bool) {
	if oversized(rec.Vertices) {
		st.lists.Oversized++
		return
	}
	rec.Order = st.order(rec.Order)
	if readsPixel {
		st.lists.TransparentPolys = append(st.lists.TransparentPolys, rec)
	} else {
		st.lists.Polys = append(st.lists.Polys, rec)
	}
}

func vertexPoint(v VertexRecord) curve.Point {
	pos := gp0.PointFromWord(v.Position)
	return curve.Pt(float64(pos.X), float64(pos.Y))
}

// extent returns the bounding box of the triangle, before the drawing offset.
func extent(vs [3]VertexRecord) curve.Rect {
	return curve.NewRectFromPoints(vertexPoint(vs[0]), vertexPoint(vs[1])).UnionPoint(vertexPoint(vs[2]))
}

func oversized(vs [3]VertexRecord) bool {
	r := extent(vs)
	return r.Width() > maxPolyWidth || r.Height() > maxPolyHeight
}
