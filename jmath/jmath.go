// Package jmath contains the integer helpers shared by the packer, the
// pipeline and the compute kernels.
package jmath

import "golang.org/x/exp/constraints"

func AlignUp[T constraints.Integer](n T, alignment T) T {
	return (n + alignment - 1) &^ (alignment - 1)
}

// DivCeil returns ceil(a / b) for non-negative a and positive b.
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

func Min3[T constraints.Ordered](a, b, c T) T {
	return min(a, b, c)
}

func Max3[T constraints.Ordered](a, b, c T) T {
	return max(a, b, c)
}

// SignExtend interprets the low bits of v as a two's complement number.
func SignExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// Lerp8 interpolates between three 8-bit channel values using integer
// barycentric weights that sum to area.
func Lerp8(c0, c1, c2 uint32, w0, w1, w2, area int64) uint32 {
	v := (int64(c0)*w0 + int64(c1)*w1 + int64(c2)*w2) / area
	return uint32(Clamp(v, 0, 255))
}
