package cpu

import (
	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/jmath"
	"honnef.co/go/gp0replay/renderer"
)

type vertex struct {
	x, y  int64
	color uint32
}

// edge is the signed doubled area of (a, b, p). It is positive when p lies
// on the inner side of a→b for a triangle with positive area.
func edge(a, b vertex, px, py int64) int64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// isTopLeft reports whether a→b is a top or left edge. Pixels exactly on
// such an edge are covered; pixels on the other edges are not.
func isTopLeft(a, b vertex) bool {
	dx := b.x - a.x
	dy := b.y - a.y
	return (dy == 0 && dx > 0) || dy < 0
}

func covers(w int64, topLeft bool) bool {
	if topLeft {
		return w >= 0
	}
	return w > 0
}

// bounds is an inclusive pixel rectangle.
type bounds struct {
	minX, minY, maxX, maxY int64
}

func (b bounds) intersect(o bounds) bounds {
	return bounds{
		minX: max(b.minX, o.minX),
		minY: max(b.minY, o.minY),
		maxX: min(b.maxX, o.maxX),
		maxY: min(b.maxY, o.maxY),
	}
}

func (b bounds) empty() bool {
	return b.minX > b.maxX || b.minY > b.maxY
}

// triangle is a poly record after applying its attributes, with positive
// area, ready for per-pixel evaluation.
type triangle struct {
	vs      [3]vertex
	area    int64
	bounds  bounds
	tl      [3]bool
	gouraud bool
	flat    uint32
	order   uint32
	flags   pixelFlags
}

// setupTriangle returns false if the triangle covers no pixel.
func setupTriangle(
	config *renderer.ConfigUniform,
	poly *encoding.PolyRecord,
	attrs *encoding.AttributesRecord,
) (triangle, bool) {
	offX, offY := attrs.Offset()
	t := triangle{
		order:   poly.Order,
		gouraud: poly.Flags&encoding.PolyFlagGouraud != 0,
	}
	for i, v := range poly.Vertices {
		pos := gp0.PointFromWord(v.Position)
		t.vs[i] = vertex{
			x:     int64(pos.X) + int64(offX),
			y:     int64(pos.Y) + int64(offY),
			color: v.Color,
		}
	}

	t.area = edge(t.vs[0], t.vs[1], t.vs[2].x, t.vs[2].y)
	if t.area == 0 {
		return triangle{}, false
	}
	if t.area < 0 {
		t.vs[1], t.vs[2] = t.vs[2], t.vs[1]
		t.area = -t.area
	}

	x1, y1, x2, y2 := attrs.DrawArea()
	vs := &t.vs
	t.bounds = bounds{
		minX: jmath.Min3(vs[0].x, vs[1].x, vs[2].x),
		minY: jmath.Min3(vs[0].y, vs[1].y, vs[2].y),
		maxX: jmath.Max3(vs[0].x, vs[1].x, vs[2].x),
		maxY: jmath.Max3(vs[0].y, vs[1].y, vs[2].y),
	}.intersect(bounds{
		minX: max(int64(x1), 0),
		minY: max(int64(y1), 0),
		maxX: min(int64(x2), int64(config.Width)-1),
		maxY: min(int64(y2), int64(config.Height)-1),
	})
	if t.bounds.empty() {
		return triangle{}, false
	}

	if poly.Flags&encoding.PolyFlagSemiTransparent != 0 {
		t.flags |= pixelBlend
	}
	force, check := attrs.MaskSetting()
	if force {
		t.flags |= pixelForceMask
	}
	if check {
		t.flags |= pixelCheckMask
	}

	t.tl = [3]bool{
		isTopLeft(vs[1], vs[2]),
		isTopLeft(vs[2], vs[0]),
		isTopLeft(vs[0], vs[1]),
	}
	t.flat = color15(vs[0].color)
	return t, true
}

// draw writes the pixels of t that lie inside clip.
func (t *triangle) draw(config *renderer.ConfigUniform, vram32 []uint32, clip bounds) {
	b := t.bounds.intersect(clip)
	vs := &t.vs
	for y := b.minY; y <= b.maxY; y++ {
		row := uint32(y) * config.Width
		for x := b.minX; x <= b.maxX; x++ {
			w0 := edge(vs[1], vs[2], x, y)
			w1 := edge(vs[2], vs[0], x, y)
			w2 := edge(vs[0], vs[1], x, y)
			if !covers(w0, t.tl[0]) || !covers(w1, t.tl[1]) || !covers(w2, t.tl[2]) {
				continue
			}
			color := t.flat
			if t.gouraud {
				color = shade(t.vs, w0, w1, w2, t.area)
			}
			writePixel(vram32, row+uint32(x), t.order, color, t.flags)
		}
	}
}

func fullBounds(config *renderer.ConfigUniform) bounds {
	return bounds{maxX: int64(config.Width) - 1, maxY: int64(config.Height) - 1}
}

// rasterize draws a single poly record.
func rasterize(
	config *renderer.ConfigUniform,
	poly *encoding.PolyRecord,
	attrs *encoding.AttributesRecord,
	vram32 []uint32,
) {
	t, ok := setupTriangle(config, poly, attrs)
	if !ok {
		return
	}
	t.draw(config, vram32, fullBounds(config))
}

// shade interpolates the vertex colours at the pixel with barycentric
// weights w0..w2 and converts the result to 15 bits.
func shade(vs [3]vertex, w0, w1, w2, area int64) uint32 {
	var rgb uint32
	for shift := uint32(0); shift < 24; shift += 8 {
		c := jmath.Lerp8(
			vs[0].color>>shift&0xff,
			vs[1].color>>shift&0xff,
			vs[2].color>>shift&0xff,
			w0, w1, w2, area)
		rgb |= c << shift
	}
	return color15(rgb)
}
