package renderer

import (
	"fmt"
	"sync/atomic"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

// Recording is an engine-independent list of commands. Engines execute the
// commands in order; every Dispatch completes before the next command starts.
type Recording struct {
	Commands []Command
}

func (rec *Recording) push(cmd Command) {
	rec.Commands = append(rec.Commands, cmd)
}

func (rec *Recording) Upload(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&Upload{buf, data})
	return buf
}

func (rec *Recording) UploadUniform(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&UploadUniform{buf, data})
	return buf
}

func (rec *Recording) Dispatch(shader ShaderID, wgSize WorkgroupSize, bindings []BufferProxy) {
	rec.push(&Dispatch{shader, wgSize, bindings})
}

func (rec *Recording) Download(buf BufferProxy) {
	rec.push(&Download{buf})
}

func (rec *Recording) FreeBuffer(buf BufferProxy) {
	rec.push(&FreeBuffer{buf})
}

// Dispatches returns the Dispatch commands in recording order.
func (rec *Recording) Dispatches() []*Dispatch {
	var out []*Dispatch
	for _, cmd := range rec.Commands {
		if d, ok := cmd.(*Dispatch); ok {
			out = append(out, d)
		}
	}
	return out
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	return BufferProxy{size, nextResourceID(), name}
}

// BufferProxy names a buffer that the engine materializes on first use.
type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

func (p BufferProxy) String() string {
	return fmt.Sprintf("%s#%d(%d bytes)", p.Name, p.ID, p.Size)
}

type ShaderID int

type Command interface {
	isCommand()
}

func (*Upload) isCommand()        {}
func (*UploadUniform) isCommand() {}
func (*Dispatch) isCommand()      {}
func (*Download) isCommand()      {}
func (*FreeBuffer) isCommand()    {}

type BindType int

const (
	BindTypeBuffer BindType = iota + 1
	BindTypeBufReadOnly
	BindTypeUniform
)

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type Dispatch struct {
	Shader        ShaderID
	WorkgroupSize WorkgroupSize
	Bindings      []BufferProxy
}

type Download struct {
	Buffer BufferProxy
}

type FreeBuffer struct {
	Buffer BufferProxy
}
