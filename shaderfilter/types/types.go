// Package types declares the collaborators of the shader filter: the codec
// contexts it is bound to and the filter graph it drives.
package types

import (
	"context"
	"reflect"

	"github.com/asticode/go-astiav"
)

// DecoderContext describes the frames fed into the filter. It is satisfied by
// *astiav.CodecContext.
type DecoderContext interface {
	PixelFormat() astiav.PixelFormat
	HardwareFramesContext() *astiav.HardwareFramesContext
	TimeBase() astiav.Rational
	Width() int
	Height() int
	SampleAspectRatio() astiav.Rational
}

// EncoderContext is the consumer of the filtered frames. It is satisfied by
// *astiav.CodecContext.
type EncoderContext interface {
	TimeBase() astiav.Rational
}

// SourceNode is the entry of the graph (*astiav.BuffersrcFilterContext).
type SourceNode interface {
	AddFrame(f *astiav.Frame, flags astiav.BuffersrcFlags) error
}

// SinkNode is the exit of the graph (*astiav.BuffersinkFilterContext).
type SinkNode interface {
	GetFrame(f *astiav.Frame, flags astiav.BuffersinkFlags) error
	TimeBase() astiav.Rational
}

// Freer is anything holding a libav allocation or reference.
type Freer interface {
	Free()
}

// Graph is the filter graph (*astiav.FilterGraph).
type Graph = Freer

// DeviceContext is a reference to the GPU device
// (*astiav.HardwareDeviceContext). Free drops this reference only; the graph
// nodes hold their own.
type DeviceContext = Freer

type GraphParams struct {
	Decoder    DecoderContext
	Width      int
	Height     int
	ShaderPath string
}

// GraphHandles is the result of a successful graph construction. Source and
// Sink belong to Graph; if they also implement Freer they are freed before it.
type GraphHandles struct {
	Graph  Graph
	Source SourceNode
	Sink   SinkNode
	Device DeviceContext
}

// IsComplete reports whether all four handles are set. A typed nil pointer
// (e.g. a nil *astiav.BuffersrcFilterContext) counts as unset.
func (h *GraphHandles) IsComplete() bool {
	return h != nil && !IsNil(h.Graph) && !IsNil(h.Source) && !IsNil(h.Sink) && !IsNil(h.Device)
}

// IsNil reports whether v is nil or an interface holding a nil pointer.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// GraphBuilder constructs a ready-to-run graph. On error it must not leave
// anything allocated behind.
type GraphBuilder interface {
	BuildGraph(ctx context.Context, params GraphParams) (*GraphHandles, error)
}

// ShaderResolver turns a user-supplied shader identifier into a file path.
type ShaderResolver interface {
	ResolveShader(identifier string) string
}
