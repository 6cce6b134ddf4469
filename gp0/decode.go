package gp0

import (
	"fmt"
	"log/slog"

	"honnef.co/go/gp0replay/internal/logger"
)

// Stats summarizes a decode.
type Stats struct {
	// Decoded is the number of commands returned.
	Decoded int
	// Skipped counts recognized commands that are not rendered (lines,
	// rectangles, VRAM transfers, cache clears). Their parameter words are
	// consumed so the stream stays in sync.
	Skipped int
	// Anomalies counts words that could not be decoded.
	Anomalies int
	// Truncated is set when the stream ended in the middle of a command.
	Truncated bool
}

// polylineTerminator marks the end of a polyline's vertex list.
const (
	polylineTerminatorMask = 0xf000f000
	polylineTerminator     = 0x50005000
)

// Decode decodes words using the package logger.
func Decode(words []uint32) []Command {
	cmds, _ := (&Decoder{}).Decode(words)
	return cmds
}

// Decoder turns a GP0 word stream into commands. The zero value is ready to
// use and logs to the package logger.
type Decoder struct {
	Logger *slog.Logger
}

type queue struct {
	words []uint32
	pos   int
}

func (q *queue) pop() (uint32, bool) {
	if q.pos >= len(q.words) {
		return 0, false
	}
	w := q.words[q.pos]
	q.pos++
	return w, true
}

// discard consumes n words and reports whether all of them were available.
func (q *queue) discard(n int) bool {
	if len(q.words)-q.pos < n {
		q.pos = len(q.words)
		return false
	}
	q.pos += n
	return true
}

type decodeState struct {
	log   *slog.Logger
	q     queue
	order uint32
	cmds  []Command
	stats Stats
}

// Decode consumes words strictly front to back. Order indices start at 1;
// a fill rect and a triangle consume one index each, a quad consumes two.
// Undecodable words are logged and counted, never returned as errors.
func (d *Decoder) Decode(words []uint32) ([]Command, Stats) {
	st := decodeState{
		log:   d.Logger,
		q:     queue{words: words},
		order: 1,
	}
	if st.log == nil {
		st.log = logger.L()
	}

	for {
		word, ok := st.q.pop()
		if !ok {
			break
		}
		if !st.decodeOne(word) {
			st.stats.Truncated = true
			st.stats.Anomalies++
			st.log.Warn("command stream ends mid-command, dropping it",
				"word", hex(word), "offset", st.q.pos)
			break
		}
	}
	st.stats.Decoded = len(st.cmds)
	return st.cmds, st.stats
}

// decodeOne returns false if the queue ran out of words.
func (st *decodeState) decodeOne(word uint32) bool {
	sub := SubOpcode(word)
	switch class := ClassOf(word); class {
	case ClassMisc:
		switch sub {
		case 0x00:
			// NOP
		case 0x01:
			st.skip(word, "cache clear")
		case 0x02:
			return st.fillRect(word)
		default:
			st.anomaly(word, "unknown misc command")
		}

	case ClassPolygon:
		return st.renderPoly(word)

	case ClassLine:
		if !st.skipLine(word) {
			return false
		}
		st.skip(word, "line")

	case ClassRect:
		n := 1
		if word&FlagTextured != 0 {
			n++
		}
		if (word>>27)&3 == 0 {
			n++
		}
		if !st.q.discard(n) {
			return false
		}
		st.skip(word, "rect")

	case ClassCopyVramToVram:
		if !st.q.discard(3) {
			return false
		}
		st.skip(word, "vram-to-vram copy")

	case ClassCopyCpuToVram:
		if !st.q.discard(1) {
			return false
		}
		size, ok := st.q.pop()
		if !ok {
			return false
		}
		w := ((size&0xffff)-1)&0x3ff + 1
		h := ((size>>16)-1)&0x1ff + 1
		if !st.q.discard(int((w*h + 1) / 2)) {
			return false
		}
		st.skip(word, "cpu-to-vram copy", "width", w, "height", h)

	case ClassCopyVramToCpu:
		if !st.q.discard(2) {
			return false
		}
		st.skip(word, "vram-to-cpu copy")

	case ClassAttribute:
		if sub < AttrDrawMode || sub > AttrMaskSetting {
			st.anomaly(word, "unknown rendering attribute")
			break
		}
		st.emit(&SetAttribute{Param: sub, Word: word})

	default:
		panic(fmt.Sprintf("unreachable: class %d", class))
	}
	return true
}

func (st *decodeState) emit(cmd Command) {
	st.log.Debug("decoded command", "command", cmd)
	st.cmds = append(st.cmds, cmd)
}

func (st *decodeState) skip(word uint32, what string, args ...any) {
	st.stats.Skipped++
	st.log.Debug("skipping command", append([]any{"kind", what, "word", hex(word)}, args...)...)
}

func (st *decodeState) anomaly(word uint32, msg string) {
	st.stats.Anomalies++
	st.log.Warn(msg, "word", hex(word), "offset", st.q.pos-1)
}

func (st *decodeState) fillRect(word uint32) bool {
	pos, ok := st.q.pop()
	if !ok {
		return false
	}
	size, ok := st.q.pop()
	if !ok {
		return false
	}
	st.emit(&FillRect{
		Order: st.order,
		Color: ColorFromWord(word),
		Rect: Rect{
			X:      uint16(pos),
			Y:      uint16(pos >> 16),
			Width:  uint16(size),
			Height: uint16(size >> 16),
		},
	})
	st.order++
	return true
}

func (st *decodeState) renderPoly(word uint32) bool {
	cmd := &RenderPoly{
		Order:    st.order,
		Opcode:   uint8(word >> 24),
		Color:    ColorFromWord(word),
		Gouraud:  word&FlagGouraud != 0,
		Textured: word&FlagTextured != 0,
		Opaque:   word&FlagSemiTransparent == 0,
	}
	cmd.TextureBlending = cmd.Textured && word&FlagRawTexture == 0

	n := 3
	if word&FlagQuad != 0 {
		n = 4
	}
	cmd.Vertices = make([]Vertex, n)

	var texWords [2]uint32
	for i := range n {
		v := &cmd.Vertices[i]
		if cmd.Gouraud {
			if i == 0 {
				v.Color = Some(cmd.Color)
			} else {
				c, ok := st.q.pop()
				if !ok {
					return false
				}
				v.Color = Some(ColorFromWord(c))
			}
		}
		pos, ok := st.q.pop()
		if !ok {
			return false
		}
		v.Pos = PointFromWord(pos)
		if cmd.Textured {
			tex, ok := st.q.pop()
			if !ok {
				return false
			}
			v.UV = Some(UVFromWord(tex))
			if i < 2 {
				texWords[i] = tex
			}
		}
	}
	if cmd.Textured {
		cmd.Clut = Some(ClutFromRaw(uint16(texWords[0] >> 16)))
		cmd.Texpage = Some(TexpageFromRaw(uint16(texWords[1] >> 16)))
	}

	st.emit(cmd)
	st.order += uint32(n - 2)
	return true
}

// skipLine consumes the vertices of a line or polyline.
func (st *decodeState) skipLine(word uint32) bool {
	gouraud := word&FlagGouraud != 0
	perVertex := 1
	if gouraud {
		perVertex = 2
	}
	// First vertex has no separate colour word.
	if !st.q.discard(1 + perVertex) {
		return false
	}
	if word&FlagQuad == 0 {
		return true
	}
	// Polyline: the terminator may appear wherever a new vertex would start.
	for {
		w, ok := st.q.pop()
		if !ok {
			return false
		}
		if w&polylineTerminatorMask == polylineTerminator {
			return true
		}
		if gouraud && !st.q.discard(1) {
			return false
		}
	}
}

type hex uint32

func (h hex) String() string { return fmt.Sprintf("%#08x", uint32(h)) }
