// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package wgpu_engine executes recordings on a wgpu device, one compute
// pass per dispatch.
package wgpu_engine

// OPT reuse bind groups

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"honnef.co/go/gp0replay/engine/shaders"
	"honnef.co/go/gp0replay/internal/logger"
	"honnef.co/go/gp0replay/jmath"
	"honnef.co/go/gp0replay/mem"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/wgpu"
)

var ErrNoDevice = errors.New("wgpu_engine: no device")

type Engine struct {
	Device      *wgpu.Device
	shaders     []wgpuShader
	pool        resourcePool
	downloads   map[renderer.ResourceID]*wgpu.Buffer
	fullShaders *renderer.FullShaders

	blit *blitPipeline
	// working is the persistent working image presented by RenderToSurface.
	working *wgpu.Buffer
}

type wgpuShader struct {
	label           string
	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

// ExternalBuffer binds a buffer owned by the caller to a proxy of the
// recording. The engine never returns it to its pool.
type ExternalBuffer struct {
	Proxy  renderer.BufferProxy
	Buffer *wgpu.Buffer
}

type bindMap struct {
	bufMap   mem.BinaryTreeMap[renderer.ResourceID, *wgpu.Buffer]
	external mem.BinaryTreeMap[renderer.ResourceID, struct{}]
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

func New(dev *wgpu.Device, options *RendererOptions) (*Engine, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	eng := &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		downloads: make(map[renderer.ResourceID]*wgpu.Buffer),
	}
	eng.fullShaders = shaders.FullShaders(eng.addShader)
	// Without a surface format the engine can only render to memory.
	if options != nil && options.SurfaceFormat != wgpu.TextureFormatUndefined {
		eng.blit = newBlitPipeline(eng.Device, options.SurfaceFormat)
	}
	return eng, nil
}

func (eng *Engine) FullShaders() *renderer.FullShaders {
	return eng.fullShaders
}

func bindGroupLayoutEntries(layout []shaders.BindType) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, bindType := range layout {
		var typ wgpu.BufferBindingType
		switch bindType.RendererBindType() {
		case renderer.BindTypeBuffer:
			typ = wgpu.BufferBindingTypeStorage
		case renderer.BindTypeBufReadOnly:
			typ = wgpu.BufferBindingTypeReadOnlyStorage
		case renderer.BindTypeUniform:
			typ = wgpu.BufferBindingTypeUniform
		default:
			panic(fmt.Sprintf("invalid bind type %d", bindType))
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer: &wgpu.BufferBindingLayout{
				Type:             typ,
				HasDynamicOffset: false,
				MinBindingSize:   0, // XXX 0 or Undefined?
			},
		}
	}
	return entries
}

func (eng *Engine) addShader(s *shaders.ComputeShader) renderer.ShaderID {
	sh := eng.createComputePipeline(s.Name, s.WGSL.Code, bindGroupLayoutEntries(s.Bindings))
	id := len(eng.shaders)
	eng.shaders = append(eng.shaders, sh)
	return renderer.ShaderID(id)
}

// RunRecording encodes rec into a single command buffer and submits it.
// Downloaded buffers can be read with Download once the submission has
// completed.
func (eng *Engine) RunRecording(
	queue *wgpu.Queue,
	recording *renderer.Recording,
	externalResources []ExternalBuffer,
	label string,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RunRecording")
	defer pgroup.End()

	var freeBufs mem.BinaryTreeMap[renderer.ResourceID, struct{}]
	var bindMap bindMap
	for _, res := range externalResources {
		bindMap.bufMap.Insert(res.Proxy.ID, res.Buffer)
		bindMap.external.Insert(res.Proxy.ID, struct{}{})
	}

	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, padCopy(cmd.Data))
			bindMap.bufMap.Insert(cmd.Buffer.ID, buf)

		case *renderer.UploadUniform:
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, cmd.Buffer.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, padCopy(cmd.Data))
			bindMap.bufMap.Insert(cmd.Buffer.ID, buf)

		case *renderer.Dispatch:
			shader := eng.shaders[cmd.Shader]
			bindGroup := bindMap.createBindGroup(&eng.pool, eng.Device, encoder, shader.bindGroupLayout, cmd.Bindings)

			cpass := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{
				Label:           shader.label,
				TimestampWrites: pgroup.Compute(shader.label),
			})
			cpass.SetPipeline(shader.pipeline)
			cpass.SetBindGroup(0, bindGroup, nil)
			wgSize := cmd.WorkgroupSize
			cpass.DispatchWorkgroups(wgSize[0], wgSize[1], wgSize[2])
			cpass.End()
			bindGroup.Release()
			cpass.Release()

		case *renderer.Download:
			srcBuf, ok := bindMap.bufMap.Get(cmd.Buffer.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(cmd.Buffer.Size, "download", usage, eng.Device)
			encoder.CopyBufferToBuffer(srcBuf, 0, buf, 0, cmd.Buffer.Size)
			eng.downloads[cmd.Buffer.ID] = buf

		case *renderer.FreeBuffer:
			freeBufs.Insert(cmd.Buffer.ID, struct{}{})

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	cmd := encoder.Finish(nil)
	encoder.Release()
	queue.Submit(cmd)
	cmd.Release()

	// Buffers that weren't freed by the recording, such as the output, are
	// returned to the pool as well. Nothing persists across recordings
	// except for external buffers and downloads.
	for id, buf := range bindMap.bufMap.All() {
		if _, ok := bindMap.external.Get(id); ok {
			continue
		}
		if _, ok := freeBufs.Get(id); !ok {
			logger.L().Debug("releasing unfreed buffer", "id", id)
		}
		eng.pool.putBuf(buf)
	}
}

// Download maps a buffer downloaded by a previous recording, copies its
// contents and returns the staging buffer to the pool.
func (eng *Engine) Download(buf renderer.BufferProxy) ([]byte, error) {
	staging, ok := eng.downloads[buf.ID]
	if !ok {
		return nil, fmt.Errorf("buffer %s wasn't downloaded", buf)
	}
	delete(eng.downloads, buf.ID)
	defer eng.pool.putBuf(staging)

	mapped := staging.Map(eng.Device, wgpu.MapModeRead, 0, int(buf.Size))
	eng.Device.Poll(true)
	if err := <-mapped; err != nil {
		return nil, fmt.Errorf("couldn't map %s: %w", buf, err)
	}
	out := make([]byte, buf.Size)
	copy(out, staging.ReadOnlyMappedRange(0, int(buf.Size)))
	staging.Unmap()
	return out, nil
}

func (eng *Engine) createComputePipeline(
	label string,
	wgsl []byte,
	entries []wgpu.BindGroupLayoutEntry,
) wgpuShader {
	// OPT(dh): use SPIR-V instead of WGSL for faster engine creation.
	shaderModule := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})
	bindGroupLayout := eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	computePipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	pipeline := eng.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: computePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	computePipelineLayout.Release()

	return wgpuShader{
		label:           label,
		pipeline:        pipeline,
		bindGroupLayout: bindGroupLayout,
	}
}

func (m *bindMap) createBindGroup(
	pool *resourcePool,
	dev *wgpu.Device,
	encoder *wgpu.CommandEncoder,
	layout *wgpu.BindGroupLayout,
	bindings []renderer.BufferProxy,
) *wgpu.BindGroup {
	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, proxy := range bindings {
		buf, ok := m.bufMap.Get(proxy.ID)
		if !ok {
			usage := wgpu.BufferUsageCopySrc |
				wgpu.BufferUsageCopyDst |
				wgpu.BufferUsageStorage
			buf = pool.getBuf(proxy.Size, proxy.Name, usage, dev)
			// Pooled buffers hold stale data.
			encoder.ClearBuffer(buf, 0, buf.Size())
			m.bufMap.Insert(proxy.ID, buf)
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf,
			Size:    ^uint64(0),
		}
	}
	return dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
}

func (pool *resourcePool) getBuf(
	size uint64,
	name string,
	usage wgpu.BufferUsage,
	dev *wgpu.Device,
) *wgpu.Buffer {
	const sizeClassBits = 1

	roundedSize := poolSizeClass(size, sizeClassBits)
	props := bufferProperties{
		size:   roundedSize,
		usages: usage,
	}
	if bufVec := pool.bufs[props]; len(bufVec) > 0 {
		buf := bufVec[len(bufVec)-1]
		pool.bufs[props] = bufVec[:len(bufVec)-1]
		return buf
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

func (pool *resourcePool) putBuf(buf *wgpu.Buffer) {
	props := bufferProperties{
		size:   buf.Size(),
		usages: buf.Usage(),
	}
	pool.bufs[props] = append(pool.bufs[props], buf)
}

// copyAlignment is the granularity of buffer writes and copies.
const copyAlignment = 4

// padCopy pads data with zeros to a multiple of copyAlignment.
func padCopy(data []byte) []byte {
	n := jmath.AlignUp(len(data), copyAlignment)
	if n == len(data) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	} else {
		return 1 << numBits
	}
}
