// Package shaderfilter runs decoded video frames through a GPU shader
// (libplacebo) filter graph and hands them over, retimed, to an encoder.
//
// A Filter is single-threaded: create it with New, bind it to a decoder and an
// encoder with Init, call ProcessFrame for every decoded frame, call Flush
// once the decoder is drained, and Close it.
package shaderfilter

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplacebo/logger"
	"github.com/xaionaro-go/avplacebo/shaderfilter/types"
)

type Filter struct {
	Config Config

	outputWidth      int
	outputHeight     int
	shaderIdentifier string
	shaderPath       string
	outputTimeBase   astiav.Rational

	// either all nil or all set:
	graph  types.Graph
	source types.SourceNode
	sink   types.SinkNode
	device types.DeviceContext
}

func New(
	width, height int,
	shaderIdentifier string,
	opts ...Option,
) *Filter {
	return &Filter{
		Config:           Options(opts).Config(),
		outputWidth:      width,
		outputHeight:     height,
		shaderIdentifier: shaderIdentifier,
	}
}

func (f *Filter) String() string {
	return fmt.Sprintf("ShaderFilter(%dx%d, '%s')", f.outputWidth, f.outputHeight, f.shaderIdentifier)
}

func (f *Filter) OutputWidth() int {
	return f.outputWidth
}

func (f *Filter) OutputHeight() int {
	return f.outputHeight
}

func (f *Filter) ShaderIdentifier() string {
	return f.shaderIdentifier
}

// ShaderPath is the file the shader identifier was resolved to by Init.
func (f *Filter) ShaderPath() string {
	return f.shaderPath
}

// OutputTimeBase is the encoder time base captured by Init; the PTS of every
// frame returned by the filter is expressed in it.
func (f *Filter) OutputTimeBase() astiav.Rational {
	return f.outputTimeBase
}

func (f *Filter) IsInitialized() bool {
	return f.graph != nil
}

// Init builds the filter graph for frames coming from decoder and going to
// encoder. A failed Init is final: Close the Filter and drop it.
func (f *Filter) Init(
	ctx context.Context,
	decoder types.DecoderContext,
	encoder types.EncoderContext,
) (_err error) {
	logger.Debugf(ctx, "Init")
	defer func() { logger.Debugf(ctx, "/Init: %v", _err) }()

	if f.IsInitialized() {
		return ErrAlreadyInitialized{}
	}

	f.shaderPath = f.Config.ShaderResolver.ResolveShader(f.shaderIdentifier)
	logger.Debugf(ctx, "shader '%s' is resolved to '%s'", f.shaderIdentifier, f.shaderPath)

	f.outputTimeBase = encoder.TimeBase()

	handles, err := f.Config.GraphBuilder.BuildGraph(ctx, types.GraphParams{
		Decoder:    decoder,
		Width:      f.outputWidth,
		Height:     f.outputHeight,
		ShaderPath: f.shaderPath,
	})
	if err == nil && !handles.IsComplete() {
		releaseHandles(ctx, handles)
		err = ErrIncompleteGraph{}
	}
	if err != nil {
		err = ErrGraphConstruction{ShaderPath: f.shaderPath, Err: err}
		logger.Errorf(ctx, "%v", err)
		return err
	}

	f.graph = handles.Graph
	f.source = handles.Source
	f.sink = handles.Sink
	f.device = handles.Device
	return nil
}

// Close releases the graph and the device context reference. It is safe to
// call it on a Filter that was never (or unsuccessfully) initialized, and to
// call it more than once.
func (f *Filter) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close") }()

	// the nodes belong to the graph, so they go first
	if f.source != nil {
		freeIfFreer(ctx, f.source)
		f.source = nil
	}
	if f.sink != nil {
		freeIfFreer(ctx, f.sink)
		f.sink = nil
	}
	if f.device != nil {
		freeIfFreer(ctx, f.device)
		f.device = nil
	}
	if f.graph != nil {
		freeIfFreer(ctx, f.graph)
		f.graph = nil
	}
	return nil
}

func freeIfFreer(ctx context.Context, handle any) {
	freer, ok := handle.(types.Freer)
	if !ok {
		logger.Tracef(ctx, "%T is owned by the graph, nothing to free", handle)
		return
	}
	if types.IsNil(freer) {
		logger.Tracef(ctx, "%T is nil, nothing to free", handle)
		return
	}
	logger.Tracef(ctx, "freeing %T", handle)
	freer.Free()
}

func releaseHandles(ctx context.Context, h *types.GraphHandles) {
	if h == nil {
		return
	}
	tmp := &Filter{
		graph:  h.Graph,
		source: h.Source,
		sink:   h.Sink,
		device: h.Device,
	}
	tmp.Close(ctx)
}
