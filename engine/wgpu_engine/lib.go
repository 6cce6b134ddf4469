package wgpu_engine

import (
	"fmt"
	"image"

	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/wgpu"
)

type RendererOptions struct {
	// SurfaceFormat is the format RenderToSurface presents in. Leave it
	// undefined for an engine that only renders to memory.
	SurfaceFormat wgpu.TextureFormat
	// TODO threading for shader init
}

type blitPipeline struct {
	BindLayout *wgpu.BindGroupLayout
	Pipeline   *wgpu.RenderPipeline
}

// blitSource presents the colour bits of the working image. Channels are
// expanded the way vram.RGB24FromColor15 does.
const blitSource = `
	struct VertexOutput {
		@builtin(position) pos: vec4<f32>,
		@location(0) uv: vec2<f32>,
	}

	@vertex
	fn vs_main(@builtin(vertex_index) ix: u32) -> VertexOutput {
		// Generate a full screen quad in normalized device coordinates
		var vertex = vec2(-1.0, 1.0);
		switch ix {
			case 1u: {
				vertex = vec2(-1.0, -1.0);
			}
			case 2u, 4u: {
				vertex = vec2(1.0, -1.0);
			}
			case 5u: {
				vertex = vec2(1.0, 1.0);
			}
			default: {}
		}
		var out: VertexOutput;
		out.pos = vec4(vertex, 0.0, 1.0);
		out.uv = vec2(vertex.x + 1.0, 1.0 - vertex.y) * 0.5;
		return out;
	}

	@group(0) @binding(0)
	var<storage> vram32: array<u32>;

	fn expand5(c: u32) -> f32 {
		return f32((c * 527u + 23u) >> 6u) / 255.0;
	}

	@fragment
	fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
		let xy = min(vec2<u32>(in.uv * vec2(1024.0, 512.0)), vec2(1023u, 511u));
		let texel = vram32[xy.y * 1024u + xy.x];
		return vec4(expand5(texel & 0x1fu), expand5((texel >> 5u) & 0x1fu), expand5((texel >> 10u) & 0x1fu), 1.0);
	}`

func newBlitPipeline(dev *wgpu.Device, format wgpu.TextureFormat) *blitPipeline {

	shader := dev.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  "blit shaders",
		Source: wgpu.ShaderSourceWGSL(blitSource),
	})
	bindLayout := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Visibility: wgpu.ShaderStageFragment,
				Binding:    0,
				Buffer: &wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeReadOnlyStorage,
				},
			},
		},
	})
	pipelineLayout := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "blit pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindLayout},
	})
	pipeline := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "blit pipeline",
		Layout: pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeBack,
		},
		Multisample: &wgpu.MultisampleState{
			Count:                  1,
			Mask:                   ^uint32(0),
			AlphaToCoverageEnabled: false,
		},
	})
	return &blitPipeline{
		BindLayout: bindLayout,
		Pipeline:   pipeline,
	}
}

// Render replays lists on top of source and returns the resolved image.
func (eng *Engine) Render(
	queue *wgpu.Queue,
	lists *encoding.Lists,
	source vram.Source,
	status gp0.Status,
	pgroup *ProfilerGroup,
) (*image.RGBA, error) {
	pgroup = pgroup.Nest("Render")
	defer pgroup.End()

	recording, target := renderer.RenderFull(lists, source, status, eng.fullShaders, pgroup)
	eng.RunRecording(queue, recording, nil, "render", pgroup)
	data, err := eng.Download(target.Output)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, vram.Width, vram.Height))
	if len(data) != len(img.Pix) {
		return nil, fmt.Errorf("output has %d bytes, want %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)
	return img, nil
}

// RenderToSurface replays lists and presents the working image, scaled to
// the surface.
func (eng *Engine) RenderToSurface(
	queue *wgpu.Queue,
	lists *encoding.Lists,
	source vram.Source,
	status gp0.Status,
	surface *wgpu.SurfaceTexture,
	pgroup *ProfilerGroup,
) {
	if eng.blit == nil {
		panic("engine was created without a surface format")
	}
	pgroup = pgroup.Nest("RenderToSurface")
	defer pgroup.End()

	if eng.working == nil {
		eng.working = eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "working image",
			Size:  vram.Size * 4,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		})
	}

	recording, target := renderer.RenderFull(lists, source, status, eng.fullShaders, pgroup)
	externalResources := []ExternalBuffer{{Proxy: target.Working, Buffer: eng.working}}
	eng.RunRecording(queue, recording, externalResources, "render_to_surface", pgroup)
	// The resolved output isn't needed when presenting.
	if staging, ok := eng.downloads[target.Output.ID]; ok {
		delete(eng.downloads, target.Output.ID)
		eng.pool.putBuf(staging)
	}

	surfaceView := surface.Texture.CreateView(nil)
	defer surfaceView.Release()

	bindGroup := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: eng.blit.BindLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  eng.working,
				Size:    ^uint64(0),
			},
		},
	})
	defer bindGroup.Release()

	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "blitter"})
	defer encoder.Release()
	span := pgroup.Begin(encoder, "present")
	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       surfaceView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 255, B: 0, A: 255},
			},
		},
		TimestampWrites: pgroup.Render("blit"),
	})
	defer renderPass.Release()

	renderPass.SetPipeline(eng.blit.Pipeline)
	renderPass.SetBindGroup(0, bindGroup, nil)
	renderPass.Draw(6, 1, 0, 0)
	renderPass.End()

	span.End(encoder)
	cmd := encoder.Finish(nil)
	defer cmd.Release()
	queue.Submit(cmd)
}

// Release frees the engine's persistent resources.
func (eng *Engine) Release() {
	if eng.working != nil {
		eng.working.Release()
		eng.working = nil
	}
}
