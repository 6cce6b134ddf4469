package shaders

import (
	"bytes"
	"testing"

	"honnef.co/go/gp0replay/renderer"
)

func TestCollectionBindings(t *testing.T) {
	var seen []*ComputeShader
	FullShaders(func(s *ComputeShader) renderer.ShaderID {
		seen = append(seen, s)
		return renderer.ShaderID(len(seen) - 1)
	})
	if len(seen) != 5 {
		t.Fatalf("registered %d shaders, want 5", len(seen))
	}
	for _, s := range seen {
		if s.CPU == nil {
			t.Errorf("%s has no CPU port", s.Name)
		}
		if n := bytes.Count(s.WGSL.Code, []byte("@binding(")); n != len(s.Bindings) {
			t.Errorf("%s declares %d bindings in WGSL, %d in Go", s.Name, n, len(s.Bindings))
		}
		if !bytes.Contains(s.WGSL.Code, []byte("@workgroup_size(256)")) {
			t.Errorf("%s doesn't use a workgroup size of 256", s.Name)
		}
		if bytes.Contains(s.WGSL.Code, []byte("#import")) {
			t.Errorf("%s wasn't preprocessed", s.Name)
		}
	}
}

func TestFullShadersIDs(t *testing.T) {
	next := renderer.ShaderID(10)
	full := FullShaders(func(s *ComputeShader) renderer.ShaderID {
		next++
		return next
	})
	ids := []renderer.ShaderID{full.InitVram, full.FillRect, full.RenderPoly, full.RenderTransparentPoly, full.Resolve}
	for i, id := range ids {
		if id != renderer.ShaderID(11+i) {
			t.Errorf("shader %d has ID %d, want %d", i, id, 11+i)
		}
	}
}

func TestTransparentPermutation(t *testing.T) {
	opaque := Collection.RenderPoly.WGSL.Code
	tiled := Collection.RenderTransparentPoly.WGSL.Code
	if bytes.Contains(opaque, []byte("@builtin(workgroup_id)")) {
		t.Errorf("opaque kernel is tiled")
	}
	if !bytes.Contains(opaque, []byte("config.n_polys")) {
		t.Errorf("opaque kernel doesn't use the opaque count")
	}
	if !bytes.Contains(tiled, []byte("@builtin(workgroup_id)")) {
		t.Errorf("transparent kernel isn't tiled")
	}
	if !bytes.Contains(tiled, []byte("config.n_transparent_polys")) {
		t.Errorf("transparent kernel doesn't use the transparent count")
	}
	if !bytes.Contains(tiled, []byte("const TILE_WIDTH = 16u;")) {
		t.Errorf("transparent kernel has the wrong tile size")
	}
	for _, code := range [][]byte{opaque, tiled} {
		if !bytes.Contains(code, []byte("poly.flags & POLY_SEMI_TRANSPARENT")) {
			t.Errorf("kernel doesn't blend per record")
		}
	}
}

func TestBindTypes(t *testing.T) {
	if !Buffer.IsMutable() || BufReadOnly.IsMutable() || Uniform.IsMutable() {
		t.Errorf("wrong mutability")
	}
	if Uniform.RendererBindType() != renderer.BindTypeUniform {
		t.Errorf("Uniform maps to %d", Uniform.RendererBindType())
	}
}
