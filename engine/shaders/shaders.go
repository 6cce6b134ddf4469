// Package shaders describes the compute kernels of the rasterization
// pipeline: their bindings, their WGSL code and their CPU ports.
package shaders

//go:generate go run honnef.co/go/gp0replay/internal/cmd/compile-shaders -in src -out wgsl

import (
	"fmt"
	"reflect"

	"honnef.co/go/gp0replay/engine/shaders/cpu"
	"honnef.co/go/gp0replay/renderer"
)

type BindType int

const (
	Buffer BindType = iota + 1
	BufReadOnly
	Uniform
)

func (typ BindType) IsMutable() bool {
	return typ == Buffer
}

// RendererBindType maps typ to the recording's bind type.
func (typ BindType) RendererBindType() renderer.BindType {
	switch typ {
	case Buffer:
		return renderer.BindTypeBuffer
	case BufReadOnly:
		return renderer.BindTypeBufReadOnly
	case Uniform:
		return renderer.BindTypeUniform
	default:
		panic(fmt.Sprintf("invalid bind type %d", typ))
	}
}

type ComputeShader struct {
	Name          string
	WorkgroupSize [3]uint32
	Bindings      []BindType
	WGSL          WGSLSource
	CPU           func(wgID uint32, resources []cpu.CPUBinding)
}

type WGSLSource struct {
	Code []byte
}

// FullShaders registers every shader of Collection with add and returns
// the resulting IDs. Fields are matched by name.
func FullShaders(add func(*ComputeShader) renderer.ShaderID) *renderer.FullShaders {
	var out renderer.FullShaders
	outV := reflect.ValueOf(&out).Elem()
	v := reflect.ValueOf(&Collection).Elem()
	matched := 0
	for i := range v.NumField() {
		fieldName := v.Type().Field(i).Name
		outField := outV.FieldByName(fieldName)
		if !outField.IsValid() {
			continue
		}
		shader := v.Field(i).Addr().Interface().(*ComputeShader)
		if len(shader.WGSL.Code) == 0 {
			panic(fmt.Sprintf("shader %q has no code", shader.Name))
		}
		outField.Set(reflect.ValueOf(add(shader)))
		matched++
	}
	if matched != outV.NumField() {
		panic(fmt.Sprintf("found %d of %d shaders", matched, outV.NumField()))
	}
	return &out
}
