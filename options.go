package gp0replay

import (
	"errors"
	"fmt"

	"honnef.co/go/wgpu"
)

var ErrInvalidWorkers = errors.New("gp0replay: invalid number of workers")

// Options configures a Context. The zero value is ready to use.
type Options struct {
	// Workers is the number of goroutines that run workgroups. Zero means
	// GOMAXPROCS.
	Workers int
	// Profile logs the duration of every pipeline stage at debug level.
	Profile bool
	// GPU runs the pipeline on Device instead of the worker pool. Acquire
	// fails with ErrNoDevice if Device is nil.
	GPU    bool
	Device *wgpu.Device
}

func (opts *Options) validate() error {
	if opts.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, opts.Workers)
	}
	return nil
}
