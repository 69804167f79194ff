package shaderfilter

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

type ErrNotInitialized struct{}

func (ErrNotInitialized) Error() string {
	return "the shader filter is not initialized"
}

type ErrAlreadyInitialized struct{}

func (ErrAlreadyInitialized) Error() string {
	return "the shader filter is already initialized"
}

type ErrGraphConstruction struct {
	ShaderPath string
	Err        error
}

func (e ErrGraphConstruction) Error() string {
	return fmt.Sprintf("unable to construct the filter graph with shader '%s': %v", e.ShaderPath, e.Err)
}

func (e ErrGraphConstruction) Unwrap() error {
	return e.Err
}

// ErrIncompleteGraph is reported when the graph builder claims success but
// does not return all the handles.
type ErrIncompleteGraph struct{}

func (ErrIncompleteGraph) Error() string {
	return "the graph builder returned an incomplete set of handles"
}

type ErrAllocation struct{}

func (ErrAllocation) Error() string {
	return "unable to allocate a frame"
}

type ErrSubmit struct {
	EndOfStream bool
	Err         error
}

func (e ErrSubmit) Error() string {
	if e.EndOfStream {
		return fmt.Sprintf("unable to signal the end of stream to the filter graph: %v", e.Err)
	}
	return fmt.Sprintf("unable to feed the filter graph: %v", e.Err)
}

func (e ErrSubmit) Unwrap() error {
	return e.Err
}

type ErrPull struct {
	Err error
}

func (e ErrPull) Error() string {
	return fmt.Sprintf("unable to get a frame from the filter graph: %v", e.Err)
}

func (e ErrPull) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err only means that the graph cannot emit a
// frame right now (EAGAIN) or anymore (EOF).
func IsTransient(err error) bool {
	return errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof)
}
