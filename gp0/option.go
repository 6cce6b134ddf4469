package gp0

// Option is a value that may be absent. Decoded fields that only exist for
// some command variants (per-vertex colour, texture coordinates, CLUT) use it
// instead of zero values, which are valid data.
type Option[T any] struct {
	isSet bool
	value T
}

func Some[T any](v T) Option[T] {
	return Option[T]{isSet: true, value: v}
}

func (opt Option[T]) IsSet() bool { return opt.isSet }

func (opt Option[T]) Get() (T, bool) {
	return opt.value, opt.isSet
}

func (opt Option[T]) Unwrap() T {
	if !opt.isSet {
		panic("option isn't set")
	}
	return opt.value
}

func (opt Option[T]) UnwrapOr(alt T) T {
	if opt.isSet {
		return opt.value
	}
	return alt
}
