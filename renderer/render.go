// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"honnef.co/go/gp0replay/encoding"
	"honnef.co/go/gp0replay/gp0"
	"honnef.co/go/gp0replay/internal/logger"
	"honnef.co/go/gp0replay/profiler"
	"honnef.co/go/gp0replay/vram"
	"honnef.co/go/safeish"
)

type FullShaders struct {
	InitVram              ShaderID
	FillRect              ShaderID
	RenderPoly            ShaderID
	RenderTransparentPoly ShaderID
	Resolve               ShaderID
}

// Target names the buffers a replay produces.
type Target struct {
	// Working is the tagged 32-bit working image, one u32 per pixel.
	Working BufferProxy
	// Output is the resolved RGBA8 image. It is downloaded by the recording.
	Output BufferProxy
}

// RenderFull records a complete replay: upload, VRAM initialization, one
// stage per command list and the final resolve. Stages whose list is empty
// are not recorded at all.
func RenderFull(
	lists *encoding.Lists,
	source vram.Source,
	status gp0.Status,
	shaders *FullShaders,
	pgroup profiler.ProfilerGroup,
) (*Recording, Target) {
	pgroup = pgroup.Start("RenderFull")
	defer pgroup.End()

	if len(source) != vram.Size {
		panic("VRAM snapshot has the wrong size")
	}

	config := NewConfigUniform(lists, status)
	wgCounts := NewWorkgroupCounts(&config)
	log := logger.L()

	var recording Recording
	configBuf := recording.UploadUniform("config", safeish.AsBytes(&config))
	vram16Buf := recording.Upload("vram16", safeish.SliceCast[[]byte]([]uint16(source)))
	fillRectBuf := recording.Upload("fill rects", lists.FillRectList().Data)
	polyBuf := recording.Upload("polys", lists.PolyList().Data)
	transparentPolyBuf := recording.Upload("transparent polys", lists.TransparentPolyList().Data)
	attributesBuf := recording.Upload("attributes", lists.AttributesList().Data)
	vram32Buf := NewBufferProxy(vram.Size*4, "vram32")
	outputBuf := NewBufferProxy(vram.Size*4, "output")

	dispatch := func(name string, shader ShaderID, wgSize WorkgroupSize, count uint32, bindings ...BufferProxy) {
		if wgSize.Total() == 0 {
			log.Debug("skipping empty stage", "stage", name)
			return
		}
		log.Debug("recording stage", "stage", name, "workgroups", wgSize[0], "items", count)
		recording.Dispatch(shader, wgSize, bindings)
	}

	dispatch("InitVram", shaders.InitVram, wgCounts.InitVram, vram.Size,
		configBuf, vram16Buf, vram32Buf)
	dispatch("FillRect", shaders.FillRect, wgCounts.FillRect, config.FillRectCount,
		configBuf, fillRectBuf, vram32Buf)
	dispatch("RenderPoly", shaders.RenderPoly, wgCounts.RenderPoly, config.PolyCount,
		configBuf, polyBuf, attributesBuf, vram32Buf)
	dispatch("RenderTransparentPoly", shaders.RenderTransparentPoly, wgCounts.RenderTransparentPoly, config.TransparentPolyCount,
		configBuf, transparentPolyBuf, attributesBuf, vram32Buf)
	dispatch("Resolve", shaders.Resolve, wgCounts.Resolve, vram.Size,
		configBuf, vram32Buf, outputBuf)
	recording.Download(outputBuf)

	recording.FreeBuffer(configBuf)
	recording.FreeBuffer(vram16Buf)
	recording.FreeBuffer(fillRectBuf)
	recording.FreeBuffer(polyBuf)
	recording.FreeBuffer(transparentPolyBuf)
	recording.FreeBuffer(attributesBuf)

	return &recording, Target{Working: vram32Buf, Output: outputBuf}
}
