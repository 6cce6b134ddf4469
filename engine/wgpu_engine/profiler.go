// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package wgpu_engine

import (
	"time"

	"honnef.co/go/gp0replay/profiler"
	"honnef.co/go/safeish"
	"honnef.co/go/wgpu"
)

const maxProfilerTimestamps = 1024

// Profiler measures GPU pass durations with timestamp queries. A nil
// *Profiler is valid and records nothing.
type Profiler struct {
	dev *wgpu.Device

	// started groups that haven't been resolved yet
	groups []*ProfilerGroup
	// resolved groups waiting for their map to complete
	mappedGroups []*ProfilerGroup

	// free list of query sets
	querySets []*wgpu.QuerySet
	// free list of buffers
	resolveBuffers []*wgpu.Buffer
	// free list of buffers
	mapBuffers []*wgpu.Buffer
}

func NewProfiler(dev *wgpu.Device) *Profiler {
	return &Profiler{
		dev: dev,
	}
}

// Start begins a top-level group, typically one per replay. Tag is
// returned unchanged in the group's result.
func (p *Profiler) Start(tag uint64) *ProfilerGroup {
	if p == nil {
		return nil
	}

	g := &ProfilerGroup{
		profiler:   p,
		Tag:        tag,
		set:        &profilerQuerySet{set: p.getQuerySet()},
		cpuStart:   time.Now(),
		resolveBuf: p.getResolveBuffer(),
		mapBuf:     p.getMapBuffer(),
	}
	p.groups = append(p.groups, g)
	return g
}

type profilerQuerySet struct {
	set *wgpu.QuerySet
	id  uint32
}

func (set *profilerQuerySet) nextID() uint32 {
	id := set.id
	set.id++
	return id
}

type ProfilerGroup struct {
	Tag        uint64
	Label      string
	set        *profilerQuerySet
	cpuStart   time.Time
	cpuEnd     time.Time
	children   []*ProfilerGroup
	gpuQueries []ProfilerQuery
	profiler   *Profiler

	// set for top-level groups only
	resolveBuf *wgpu.Buffer
	mapBuf     *wgpu.Buffer
	ch         <-chan error
}

func (g *ProfilerGroup) End() {
	if g == nil {
		return
	}
	if !g.cpuEnd.IsZero() {
		panic("trying to end same group twice")
	}
	g.cpuEnd = time.Now()
}

// TODO(dh): having both Start and Nest sucks, but we need Start to implement
// profiler.ProfilerGroup, and we need the interface so packages don't need a
// direct dependency on wgpu.

func (g *ProfilerGroup) Start(label string) profiler.ProfilerGroup {
	if g == nil {
		return (*ProfilerGroup)(nil)
	}
	return g.Nest(label)
}

func (g *ProfilerGroup) Nest(label string) *ProfilerGroup {
	if g == nil {
		return nil
	}
	cg := &ProfilerGroup{
		profiler: g.profiler,
		Label:    label,
		set:      g.set,
		cpuStart: time.Now(),
	}
	g.children = append(g.children, cg)
	return cg
}

type ProfilerQuery struct {
	Label   string
	startID uint32
	endID   uint32
}

func (g *ProfilerGroup) query(label string) (startID, endID uint32, ok bool) {
	if g == nil || g.set.id+2 > maxProfilerTimestamps {
		return 0, 0, false
	}
	startID, endID = g.set.nextID(), g.set.nextID()
	g.gpuQueries = append(g.gpuQueries, ProfilerQuery{
		Label:   label,
		startID: startID,
		endID:   endID,
	})
	return startID, endID, true
}

func (g *ProfilerGroup) Compute(label string) *wgpu.ComputePassTimestampWrites {
	startID, endID, ok := g.query(label)
	if !ok {
		return nil
	}
	return &wgpu.ComputePassTimestampWrites{
		QuerySet:                  g.set.set,
		BeginningOfPassWriteIndex: startID,
		EndOfPassWriteIndex:       endID,
	}
}

func (g *ProfilerGroup) Render(label string) *wgpu.RenderPassTimestampWrites {
	startID, endID, ok := g.query(label)
	if !ok {
		return nil
	}
	return &wgpu.RenderPassTimestampWrites{
		QuerySet:                  g.set.set,
		BeginningOfPassWriteIndex: startID,
		EndOfPassWriteIndex:       endID,
	}
}

func (g *ProfilerGroup) Begin(enc *wgpu.CommandEncoder, label string) ProfilerSpan {
	startID, endID, ok := g.query(label)
	if !ok {
		return ProfilerSpan{}
	}
	enc.WriteTimestamp(g.set.set, startID)
	return ProfilerSpan{
		set:   g.set.set,
		endID: endID,
	}
}

type ProfilerSpan struct {
	set   *wgpu.QuerySet
	endID uint32
}

func (span ProfilerSpan) End(enc *wgpu.CommandEncoder) {
	if span.set == nil {
		return
	}
	enc.WriteTimestamp(span.set, span.endID)
}

func pop[T any](free *[]T, alloc func() T) T {
	if len(*free) == 0 {
		return alloc()
	}
	v := (*free)[len(*free)-1]
	*free = (*free)[:len(*free)-1]
	return v
}

func (p *Profiler) getQuerySet() *wgpu.QuerySet {
	return pop(&p.querySets, func() *wgpu.QuerySet {
		return p.dev.CreateQuerySet(&wgpu.QuerySetDescriptor{
			Type:  wgpu.QueryTypeTimestamp,
			Count: maxProfilerTimestamps,
		})
	})
}

func (p *Profiler) getResolveBuffer() *wgpu.Buffer {
	return pop(&p.resolveBuffers, func() *wgpu.Buffer {
		return p.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
			Size:  maxProfilerTimestamps * 8,
		})
	})
}

func (p *Profiler) getMapBuffer() *wgpu.Buffer {
	return pop(&p.mapBuffers, func() *wgpu.Buffer {
		return p.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
			Size:  maxProfilerTimestamps * 8,
		})
	})
}

// Resolve encodes the resolution of all started groups and starts mapping
// them once enc's command buffer has been submitted via Map.
func (p *Profiler) Resolve(enc *wgpu.CommandEncoder) {
	if p == nil {
		return
	}
	for _, g := range p.groups {
		if g.set.id == 0 {
			continue
		}
		enc.ResolveQuerySet(g.set.set, 0, g.set.id, g.resolveBuf, 0)
		enc.CopyBufferToBuffer(g.resolveBuf, 0, g.mapBuf, 0, uint64(g.set.id)*8)
	}
}

// Map must be called after the command buffer containing Resolve has been
// submitted.
func (p *Profiler) Map() {
	if p == nil {
		return
	}
	for _, g := range p.groups {
		if g.set.id == 0 {
			p.release(g)
			continue
		}
		g.ch = g.mapBuf.Map(p.dev, wgpu.MapModeRead, 0, int(g.set.id)*8)
		p.mappedGroups = append(p.mappedGroups, g)
	}
	clear(p.groups)
	p.groups = p.groups[:0]
}

func (p *Profiler) release(g *ProfilerGroup) {
	p.querySets = append(p.querySets, g.set.set)
	p.mapBuffers = append(p.mapBuffers, g.mapBuf)
	p.resolveBuffers = append(p.resolveBuffers, g.resolveBuf)
}

type ProfilerResult struct {
	Tag      uint64
	Label    string
	CPUStart time.Time
	CPUEnd   time.Time
	Queries  []ProfilerQueryResult
	Children []ProfilerResult
}

type ProfilerQueryResult struct {
	Label string
	Start uint64
	End   uint64
}

// Duration returns the GPU time between the query's timestamps, in the
// device's timestamp units.
func (q ProfilerQueryResult) Duration() uint64 {
	return q.End - q.Start
}

func newResult(g *ProfilerGroup, values []uint64) ProfilerResult {
	res := ProfilerResult{
		Tag:      g.Tag,
		Label:    g.Label,
		CPUStart: g.cpuStart,
		CPUEnd:   g.cpuEnd,
		Queries:  make([]ProfilerQueryResult, len(g.gpuQueries)),
		Children: make([]ProfilerResult, len(g.children)),
	}
	for qi, q := range g.gpuQueries {
		res.Queries[qi] = ProfilerQueryResult{
			Label: q.Label,
			Start: values[q.startID],
			End:   values[q.endID],
		}
	}
	for ci, c := range g.children {
		res.Children[ci] = newResult(c, values)
	}
	return res
}

// Collect returns the results of all groups whose maps have completed, in
// the order the groups were started.
func (p *Profiler) Collect() []ProfilerResult {
	if p == nil {
		return nil
	}
	var out []ProfilerResult
	for i, g := range p.mappedGroups {
		select {
		case err := <-g.ch:
			if err != nil {
				panic(err)
			}
			data := safeish.SliceCast[[]uint64](g.mapBuf.ReadOnlyMappedRange(0, int(g.set.id)*8))
			out = append(out, newResult(g, data))
			g.mapBuf.Unmap()
			p.release(g)
		default:
			// We stop at the first missing group so that we return groups in
			// order of creation.
			n := copy(p.mappedGroups, p.mappedGroups[i:])
			clear(p.mappedGroups[n:])
			p.mappedGroups = p.mappedGroups[:n]
			return out
		}
	}
	clear(p.mappedGroups)
	p.mappedGroups = p.mappedGroups[:0]
	return out
}
