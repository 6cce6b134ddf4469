package shaders

import (
	_ "embed"

	"honnef.co/go/gp0replay/engine/shaders/cpu"
	"honnef.co/go/gp0replay/renderer"
)

var (
	//go:embed wgsl/init_vram.wgsl
	initVramWGSL []byte
	//go:embed wgsl/fill_rect.wgsl
	fillRectWGSL []byte
	//go:embed wgsl/render_poly.wgsl
	renderPolyWGSL []byte
	//go:embed wgsl/render_transparent_poly.wgsl
	renderTransparentPolyWGSL []byte
	//go:embed wgsl/resolve.wgsl
	resolveWGSL []byte
)

var wgSize = [3]uint32{renderer.WG_SIZE, 1, 1}

var Collection = struct {
	InitVram              ComputeShader
	FillRect              ComputeShader
	RenderPoly            ComputeShader
	RenderTransparentPoly ComputeShader
	Resolve               ComputeShader
}{
	InitVram: ComputeShader{
		Name:          "init_vram",
		WorkgroupSize: wgSize,
		Bindings:      []BindType{Uniform, BufReadOnly, Buffer},
		WGSL:          WGSLSource{Code: initVramWGSL},
		CPU:           cpu.InitVram,
	},
	FillRect: ComputeShader{
		Name:          "fill_rect",
		WorkgroupSize: wgSize,
		Bindings:      []BindType{Uniform, BufReadOnly, Buffer},
		WGSL:          WGSLSource{Code: fillRectWGSL},
		CPU:           cpu.FillRect,
	},
	RenderPoly: ComputeShader{
		Name:          "render_poly",
		WorkgroupSize: wgSize,
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, Buffer},
		WGSL:          WGSLSource{Code: renderPolyWGSL},
		CPU:           cpu.RenderPoly,
	},
	RenderTransparentPoly: ComputeShader{
		Name:          "render_transparent_poly",
		WorkgroupSize: wgSize,
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, Buffer},
		WGSL:          WGSLSource{Code: renderTransparentPolyWGSL},
		CPU:           cpu.RenderTransparentPoly,
	},
	Resolve: ComputeShader{
		Name:          "resolve",
		WorkgroupSize: wgSize,
		Bindings:      []BindType{Uniform, BufReadOnly, Buffer},
		WGSL:          WGSLSource{Code: resolveWGSL},
		CPU:           cpu.Resolve,
	},
}
