package encoding

import (
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/safeish"
)

func records[T any](l List) []T {
	if l.Count == 0 {
		return nil
	}
	return safeish.SliceCast[[]T](l.Data)[:l.Count]
}

// UnpackFillRects turns a packed fill rect list back into commands.
func UnpackFillRects(l List) []*gp0.FillRect {
	recs := records[FillRectRecord](l)
	out := make([]*gp0.FillRect, len(recs))
	for i, rec := range recs {
		out[i] = &gp0.FillRect{
			Order: rec.Order,
			Color: gp0.ColorFromWord(rec.Color),
			Rect: gp0.Rect{
				X:      uint16(rec.Position),
				Y:      uint16(rec.Position >> 16),
				Width:  uint16(rec.Size),
				Height: uint16(rec.Size >> 16),
			},
		}
	}
	return out
}

// UnpackPolys turns a packed polygon list back into commands. The two halves
// of a quad are merged again if both are present.
func UnpackPolys(l List) []*gp0.RenderPoly {
	var out []*gp0.RenderPoly
	for _, rec := range records[PolyRecord](l) {
		if rec.Flags&PolyFlagQuadSecond != 0 && len(out) > 0 {
			prev := out[len(out)-1]
			if !prev.IsQuad() && prev.Order+1 == rec.Order {
				prev.Vertices = append(prev.Vertices, unpackVertex(prev, rec.Vertices[2]))
				continue
			}
		}
		cmd := &gp0.RenderPoly{
			Order:    rec.Order,
			Opcode:   uint8(rec.Color >> 24),
			Color:    gp0.ColorFromWord(rec.Color),
			Gouraud:  rec.Flags&PolyFlagGouraud != 0,
			Textured: rec.Flags&PolyFlagTextured != 0,
			Opaque:   rec.Flags&PolyFlagSemiTransparent == 0,
		}
		cmd.TextureBlending = cmd.Textured && rec.Flags&PolyFlagRawTexture == 0
		if cmd.Textured {
			cmd.Clut = gp0.Some(gp0.ClutFromRaw(uint16(rec.TexInfo)))
			cmd.Texpage = gp0.Some(gp0.TexpageFromRaw(uint16(rec.TexInfo >> 16)))
		}
		cmd.Vertices = make([]gp0.Vertex, 3, 4)
		for i, v := range rec.Vertices {
			cmd.Vertices[i] = unpackVertex(cmd, v)
		}
		out = append(out, cmd)
	}
	return out
}

func unpackVertex(cmd *gp0.RenderPoly, v VertexRecord) gp0.Vertex {
	out := gp0.Vertex{Pos: gp0.PointFromWord(v.Position)}
	if cmd.Gouraud {
		out.Color = gp0.Some(gp0.ColorFromWord(v.Color))
	}
	if cmd.Textured {
		out.UV = gp0.Some(gp0.UVFromWord(v.UV))
	}
	return out
}
