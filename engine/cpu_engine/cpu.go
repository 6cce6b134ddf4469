// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu_engine executes recordings with the CPU ports of the compute
// shaders. Each dispatch runs its workgroups on a worker pool and returns
// once all of them have finished, which gives the same stage barrier the
// GPU engine gets from separate compute passes.
package cpu_engine

import (
	"context"
	"fmt"

	"honnef.co/go/gp0replay/engine/shaders"
	"honnef.co/go/gp0replay/engine/shaders/cpu"
	"honnef.co/go/gp0replay/internal/logger"
	"honnef.co/go/gp0replay/internal/parallel"
	"honnef.co/go/gp0replay/jmath"
	"honnef.co/go/gp0replay/mem"
	"honnef.co/go/gp0replay/profiler"
	"honnef.co/go/gp0replay/renderer"
	"honnef.co/go/safeish"
)

type shader struct {
	label    string
	bindings []shaders.BindType
	fn       func(uint32, []cpu.CPUBinding)
}

// Engine is not safe for concurrent use.
type Engine struct {
	pool        *parallel.WorkerPool
	shaders     []shader
	fullShaders *renderer.FullShaders
	downloads   map[renderer.ResourceID][]byte
}

// New returns an engine that runs workgroups on pool. The engine doesn't
// take ownership of the pool.
func New(pool *parallel.WorkerPool) *Engine {
	eng := &Engine{
		pool:      pool,
		downloads: make(map[renderer.ResourceID][]byte),
	}
	eng.fullShaders = shaders.FullShaders(eng.addShader)
	return eng
}

func (eng *Engine) FullShaders() *renderer.FullShaders {
	return eng.fullShaders
}

func (eng *Engine) addShader(s *shaders.ComputeShader) renderer.ShaderID {
	if s.CPU == nil {
		panic(fmt.Sprintf("shader %q has no CPU implementation", s.Name))
	}
	id := renderer.ShaderID(len(eng.shaders))
	eng.shaders = append(eng.shaders, shader{
		label:    s.Name,
		bindings: s.Bindings,
		fn:       s.CPU,
	})
	return id
}

// newBuffer allocates a zeroed buffer that is suitably aligned for atomic
// 32-bit access.
func newBuffer(size uint64) []byte {
	words := make([]uint32, jmath.DivCeil(size, 4))
	return safeish.SliceCast[[]byte](words)[:size]
}

type bindMap struct {
	bufs mem.BinaryTreeMap[renderer.ResourceID, []byte]
	// uploaded holds buffers that still alias the caller's data.
	uploaded mem.BinaryTreeMap[renderer.ResourceID, struct{}]
}

func (m *bindMap) getOrCreate(proxy renderer.BufferProxy) []byte {
	if buf, ok := m.bufs.Get(proxy.ID); ok {
		return buf
	}
	buf := newBuffer(proxy.Size)
	m.bufs.Insert(proxy.ID, buf)
	return buf
}

// getMutable returns a buffer that kernels may write to, copying uploaded
// data first.
func (m *bindMap) getMutable(proxy renderer.BufferProxy) []byte {
	buf := m.getOrCreate(proxy)
	if m.uploaded.Delete(proxy.ID) {
		owned := newBuffer(proxy.Size)
		copy(owned, buf)
		m.bufs.Insert(proxy.ID, owned)
		buf = owned
	}
	return buf
}

// RunRecording executes rec. ctx is checked before every dispatch; a
// cancelled recording leaves no downloads behind.
func (eng *Engine) RunRecording(ctx context.Context, rec *renderer.Recording, pgroup profiler.ProfilerGroup) (err error) {
	pgroup = pgroup.Start("RunRecording")
	defer pgroup.End()

	var bindMap bindMap
	var downloads []renderer.BufferProxy
	defer func() {
		if err != nil {
			for _, d := range downloads {
				delete(eng.downloads, d.ID)
			}
		}
	}()

	log := logger.L()
	for _, cmd := range rec.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			// The data is only copied once a kernel binds it mutably.
			bindMap.bufs.Insert(cmd.Buffer.ID, cmd.Data)
			bindMap.uploaded.Insert(cmd.Buffer.ID, struct{}{})

		case *renderer.UploadUniform:
			bindMap.bufs.Insert(cmd.Buffer.ID, cmd.Data)
			bindMap.uploaded.Insert(cmd.Buffer.ID, struct{}{})

		case *renderer.Dispatch:
			if err := ctx.Err(); err != nil {
				return err
			}
			s := eng.shaders[cmd.Shader]
			if len(cmd.Bindings) != len(s.bindings) {
				panic(fmt.Sprintf("shader %s takes %d bindings, got %d", s.label, len(s.bindings), len(cmd.Bindings)))
			}
			resources := make([]cpu.CPUBinding, len(cmd.Bindings))
			for i, proxy := range cmd.Bindings {
				if s.bindings[i].IsMutable() {
					resources[i] = cpu.CPUBuffer(bindMap.getMutable(proxy))
				} else {
					resources[i] = cpu.CPUBuffer(bindMap.getOrCreate(proxy))
				}
			}

			n := cmd.WorkgroupSize.Total()
			log.Debug("dispatching", "shader", s.label, "workgroups", n)
			stage := pgroup.Start(s.label)
			eng.pool.Dispatch(n, func(wgID uint32) {
				s.fn(wgID, resources)
			})
			stage.End()

		case *renderer.Download:
			buf, ok := bindMap.bufs.Get(cmd.Buffer.ID)
			if !ok {
				panic("tried using unavailable buffer for download")
			}
			eng.downloads[cmd.Buffer.ID] = buf
			downloads = append(downloads, cmd.Buffer)

		case *renderer.FreeBuffer:
			bindMap.bufs.Delete(cmd.Buffer.ID)
			bindMap.uploaded.Delete(cmd.Buffer.ID)

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}
	return nil
}

// Download returns the contents of a buffer downloaded by a previous
// recording and forgets about it.
func (eng *Engine) Download(buf renderer.BufferProxy) ([]byte, bool) {
	got, ok := eng.downloads[buf.ID]
	delete(eng.downloads, buf.ID)
	return got, ok
}
