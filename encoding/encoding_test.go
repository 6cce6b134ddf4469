package encoding

import (
	"reflect"
	"testing"

	"honnef.co/go/gp0replay/gp0"
)

func TestRecordSizes(t *testing.T) {
	var l Lists
	if got := l.FillRectList().Stride; got != 16 {
		t.Errorf("fill rect stride = %d, want 16", got)
	}
	if got := l.PolyList().Stride; got != 56 {
		t.Errorf("poly stride = %d, want 56", got)
	}
	if got := l.AttributesList().Stride; got != 24 {
		t.Errorf("attributes stride = %d, want 24", got)
	}
}

func TestEmptyListsCarryPlaceholder(t *testing.T) {
	lists := Pack(nil)
	for name, l := range map[string]List{
		"fill rects":        lists.FillRectList(),
		"polys":             lists.PolyList(),
		"transparent polys": lists.TransparentPolyList(),
		"attributes":        lists.AttributesList(),
	} {
		if l.Count != 0 {
			t.Errorf("%s: Count = %d, want 0", name, l.Count)
		}
		if uint32(len(l.Data)) != l.Stride {
			t.Errorf("%s: len(Data) = %d, want one record of %d bytes", name, len(l.Data), l.Stride)
		}
		for _, b := range l.Data {
			if b != 0 {
				t.Errorf("%s: placeholder is not zeroed", name)
				break
			}
		}
	}
}

func TestPackFillRect(t *testing.T) {
	lists := Pack(gp0.Decode([]uint32{0x02ff00ff, 0x0014000a, 0x00050005}))
	want := []FillRectRecord{{Order: 1, Color: 0x02ff00ff, Position: 0x0014000a, Size: 0x00050005}}
	if !reflect.DeepEqual(lists.FillRects, want) {
		t.Errorf("got %+v, want %+v", lists.FillRects, want)
	}
	if len(lists.Attributes) != 0 {
		t.Errorf("fill rects should not snapshot attributes, got %d", len(lists.Attributes))
	}
	if l := lists.FillRectList(); l.Count != 1 || len(l.Data) != 16 {
		t.Errorf("list = %d records in %d bytes", l.Count, len(l.Data))
	}
}

func TestPackQuadSplitsIntoTriangles(t *testing.T) {
	// Gouraud quad, opaque.
	words := []uint32{
		0x38000001, 0x00000000,
		0x00000002, 0x00000010,
		0x00000003, 0x00100000,
		0x00000004, 0x00100010,
	}
	lists := Pack(gp0.Decode(words))
	if len(lists.Polys) != 2 || len(lists.TransparentPolys) != 0 {
		t.Fatalf("got %d opaque and %d translucent records", len(lists.Polys), len(lists.TransparentPolys))
	}
	a, b := lists.Polys[0], lists.Polys[1]
	if a.Order != 1 || b.Order != 2 {
		t.Errorf("orders = %d, %d, want 1, 2", a.Order, b.Order)
	}
	if a.Flags&PolyFlagQuadSecond != 0 || b.Flags&PolyFlagQuadSecond == 0 {
		t.Errorf("flags = %#x, %#x", a.Flags, b.Flags)
	}
	for i, want := range []uint32{1, 2, 3} {
		if a.Vertices[i].Color != want {
			t.Errorf("first half vertex %d colour = %d, want %d", i, a.Vertices[i].Color, want)
		}
	}
	for i, want := range []uint32{2, 3, 4} {
		if b.Vertices[i].Color != want {
			t.Errorf("second half vertex %d colour = %d, want %d", i, b.Vertices[i].Color, want)
		}
	}
	if a.Color != 0x38000001 {
		t.Errorf("Color = %#x, want the raw command word", a.Color)
	}
}

func TestPackSplitsByTransparency(t *testing.T) {
	words := []uint32{
		0x20ffffff, 0, 0x10, 0x00100000, // opaque
		0x22ffffff, 0, 0x10, 0x00100000, // semi-transparent
		0x20ffffff, 0, 0x10, 0x00100000, // opaque
	}
	lists := Pack(gp0.Decode(words))
	if len(lists.Polys) != 2 || len(lists.TransparentPolys) != 1 {
		t.Fatalf("got %d opaque and %d translucent records", len(lists.Polys), len(lists.TransparentPolys))
	}
	if lists.TransparentPolys[0].Order != 2 {
		t.Errorf("translucent order = %d, want 2", lists.TransparentPolys[0].Order)
	}
	if lists.TransparentPolys[0].Flags&PolyFlagSemiTransparent == 0 {
		t.Error("translucent record lacks PolyFlagSemiTransparent")
	}
	// Flat polygons repeat the base colour in every vertex.
	for i, v := range lists.Polys[0].Vertices {
		if v.Color != 0xffffff {
			t.Errorf("vertex %d colour = %#x, want 0xffffff", i, v.Color)
		}
	}
}

func TestPackAttributeSnapshots(t *testing.T) {
	tri := []uint32{0x20ffffff, 0, 0x10, 0x00100000}
	var words []uint32
	words = append(words, tri...)                    // default attributes
	words = append(words, 0xe5000000|5<<11|10)       // offset (10, 5)
	words = append(words, 0xe6000001)                // force mask bit
	words = append(words, tri...)                    // snapshot 1
	words = append(words, tri...)                    // reuses snapshot 1
	words = append(words, 0xe3000000|20<<10|30)      // draw area top left
	words = append(words, 0x02000000, 0, 0x00010001) // fill rect, no snapshot
	words = append(words, tri...)                    // snapshot 2

	lists := Pack(gp0.Decode(words))
	if len(lists.Attributes) != 3 {
		t.Fatalf("got %d attribute snapshots, want 3", len(lists.Attributes))
	}
	if lists.Attributes[0] != DefaultAttributes {
		t.Errorf("first snapshot = %+v, want defaults", lists.Attributes[0])
	}
	if x, y := lists.Attributes[1].Offset(); x != 10 || y != 5 {
		t.Errorf("snapshot 1 offset = %d, %d, want 10, 5", x, y)
	}
	if force, _ := lists.Attributes[1].MaskSetting(); !force {
		t.Error("snapshot 1 lost the mask setting")
	}
	x1, y1, x2, y2 := lists.Attributes[2].DrawArea()
	if x1 != 30 || y1 != 20 || x2 != 1023 || y2 != 511 {
		t.Errorf("snapshot 2 draw area = %d,%d-%d,%d", x1, y1, x2, y2)
	}
	if x, _ := lists.Attributes[2].Offset(); x != 10 {
		t.Errorf("snapshot 2 should inherit the offset, got %d", x)
	}
	var idx []uint32
	for _, p := range lists.Polys {
		idx = append(idx, p.AttrsIdx)
	}
	if !reflect.DeepEqual(idx, []uint32{0, 1, 1, 2}) {
		t.Errorf("AttrsIdx = %v, want [0 1 1 2]", idx)
	}
}

func TestPackDropsOversizedTriangles(t *testing.T) {
	words := []uint32{
		0x20ffffff, 0, 1024, 0x00100000, // 1024 wide
		0x20ffffff, 0, 1023, 0x01ff0000, // exactly at the limit
	}
	lists := Pack(gp0.Decode(words))
	if lists.Oversized != 1 || len(lists.Polys) != 1 {
		t.Fatalf("Oversized = %d, records = %d, want 1, 1", lists.Oversized, len(lists.Polys))
	}
	if lists.Polys[0].Order != 2 {
		t.Errorf("surviving order = %d, want 2", lists.Polys[0].Order)
	}
}

func TestPackSaturatesOrder(t *testing.T) {
	lists := Pack([]gp0.Command{&gp0.FillRect{Order: MaxOrder + 10}})
	if lists.FillRects[0].Order != MaxOrder || lists.Saturated != 1 {
		t.Errorf("order = %d, saturated = %d", lists.FillRects[0].Order, lists.Saturated)
	}
}

func TestUnpackRoundTrip(t *testing.T) {
	words := []uint32{
		0x02102030, 0x00200010, 0x00080004, // fill rect
		0x3c112233, // gouraud textured quad
		0x00100010, 0x7a000102,
		0x00445566, 0x00100020, 0x000f0304,
		0x00778899, 0x00200010, 0x00000506,
		0x00aabbcc, 0x00200020, 0x00000708,
		0x20ffffff, 0xfff6fffb, 0x10, 0x00100000, // flat triangle, negative coordinates
	}
	cmds := gp0.Decode(words)
	lists := Pack(cmds)

	rects := UnpackFillRects(lists.FillRectList())
	if len(rects) != 1 || !reflect.DeepEqual(rects[0], cmds[0]) {
		t.Errorf("fill rect round trip: got %+v, want %+v", rects, cmds[0])
	}

	polys := UnpackPolys(lists.PolyList())
	if len(polys) != 2 {
		t.Fatalf("got %d polys, want 2", len(polys))
	}
	for i, p := range polys {
		if !reflect.DeepEqual(p, cmds[i+1]) {
			t.Errorf("poly %d round trip:\ngot  %+v\nwant %+v", i, p, cmds[i+1])
		}
	}

	if got := UnpackPolys(lists.TransparentPolyList()); len(got) != 0 {
		t.Errorf("placeholder record unpacked as %d polys", len(got))
	}
}

func TestPackRoutesMaskCheckedPolys(t *testing.T) {
	tri := []uint32{0x20ffffff, 0, 0x10, 0x00100000}
	transparent := []uint32{0x22ffffff, 0, 0x10, 0x00100000}
	var words []uint32
	words = append(words, transparent...) // order 1
	words = append(words, tri...)         // order 2, opaque
	words = append(words, 0xe6000002)     // check mask bit
	words = append(words, tri...)         // order 3, reads the mask bit
	words = append(words, transparent...) // order 4
	words = append(words, 0xe6000001)     // force only
	words = append(words, tri...)         // order 5, opaque

	lists := Pack(gp0.Decode(words))
	var opaque, ordered []uint32
	for _, p := range lists.Polys {
		opaque = append(opaque, p.Order)
	}
	for _, p := range lists.TransparentPolys {
		ordered = append(ordered, p.Order)
	}
	if !reflect.DeepEqual(opaque, []uint32{2, 5}) {
		t.Errorf("opaque orders = %v, want [2 5]", opaque)
	}
	if !reflect.DeepEqual(ordered, []uint32{1, 3, 4}) {
		t.Errorf("pixel-reading orders = %v, want [1 3 4]", ordered)
	}
	if lists.TransparentPolys[1].Flags&PolyFlagSemiTransparent != 0 {
		t.Error("mask-checked opaque record marked semi-transparent")
	}
}

func TestOversizedUsesExtent(t *testing.T) {
	tests := []struct {
		name string
		vs   [3][2]int16
		want bool
	}{
		{"small", [3][2]int16{{0, 0}, {16, 0}, {0, 16}}, false},
		{"wide", [3][2]int16{{-512, 0}, {512, 0}, {0, 16}}, true},
		{"at limit", [3][2]int16{{0, 0}, {1023, 0}, {0, 511}}, false},
		{"tall", [3][2]int16{{0, -1}, {10, 0}, {0, 511}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vs [3]VertexRecord
			for i, p := range tt.vs {
				vs[i].Position = gp0.Point{X: p[0], Y: p[1]}.Word()
			}
			if got := oversized(vs); got != tt.want {
				t.Errorf("oversized = %t, want %t", got, tt.want)
			}
		})
	}
}
