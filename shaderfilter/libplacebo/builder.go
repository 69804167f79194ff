// Package libplacebo constructs the "buffer -> libplacebo -> buffersink"
// filter graph the shader filter runs on, with the GPU device context bound
// to the libplacebo node.
package libplacebo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplacebo/logger"
	"github.com/xaionaro-go/avplacebo/shaderfilter/types"
	globaltypes "github.com/xaionaro-go/avplacebo/types"
)

const (
	FilterNameSource = "buffer"
	FilterNameSink   = "buffersink"
	FilterName       = "libplacebo"

	DefaultUpscaler = "ewa_lanczos"
)

type Builder struct {
	DeviceType globaltypes.HardwareDeviceType
	DeviceName string
	Upscaler   string

	// ExtraArgs are extra options of the libplacebo filter (e.g. "format").
	ExtraArgs map[string]string
}

var _ types.GraphBuilder = (*Builder)(nil)

func NewBuilder() *Builder {
	return &Builder{
		DeviceType: globaltypes.HardwareDeviceTypeVulkan,
		Upscaler:   DefaultUpscaler,
	}
}

func (b *Builder) String() string {
	return fmt.Sprintf("libplacebo(%s:'%s')", b.DeviceType, b.DeviceName)
}

// FilterDescription renders the libplacebo node as a filtergraph description,
// e.g. "libplacebo=w=1920:h=1080:upscaler=ewa_lanczos:custom_shader_path=/a.glsl".
// The fixed options come first, then ExtraArgs sorted by key; ExtraArgs
// cannot override the fixed ones.
func (b *Builder) FilterDescription(params types.GraphParams) string {
	upscaler := b.Upscaler
	if upscaler == "" {
		upscaler = DefaultUpscaler
	}
	fixed := [][2]string{
		{"w", strconv.Itoa(params.Width)},
		{"h", strconv.Itoa(params.Height)},
		{"upscaler", upscaler},
		{"custom_shader_path", params.ShaderPath},
	}

	extraKeys := make([]string, 0, len(b.ExtraArgs))
	for k := range b.ExtraArgs {
		if slices.ContainsFunc(fixed, func(kv [2]string) bool { return kv[0] == k }) {
			continue
		}
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)

	var sb strings.Builder
	sb.WriteString(FilterName)
	sep := byte('=')
	write := func(k, v string) {
		sb.WriteByte(sep)
		sep = ':'
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(EscapeFilterArg(v))
	}
	for _, kv := range fixed {
		write(kv[0], kv[1])
	}
	for _, k := range extraKeys {
		write(k, b.ExtraArgs[k])
	}
	return sb.String()
}

// EscapeFilterArg escapes an option value for a filtergraph description. The
// value is unescaped twice by libav: first by the graph parser, then by the
// option parser, so both levels are applied.
func EscapeFilterArg(s string) string {
	return escape(escape(s, `\':`), `\'[],;`)
}

func escape(s string, special string) string {
	var sb strings.Builder
	for _, c := range s {
		if strings.ContainsRune(special, c) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

func (b *Builder) BuildGraph(
	ctx context.Context,
	params types.GraphParams,
) (_ret *types.GraphHandles, _err error) {
	logger.Debugf(ctx, "BuildGraph(%dx%d, '%s')", params.Width, params.Height, params.ShaderPath)
	defer func() { logger.Debugf(ctx, "/BuildGraph: %v", _err) }()

	if params.Decoder == nil {
		return nil, fmt.Errorf("decoder context is nil")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return nil, fmt.Errorf("invalid output resolution %dx%d", params.Width, params.Height)
	}

	filterSource := astiav.FindFilterByName(FilterNameSource)
	filterSink := astiav.FindFilterByName(FilterNameSink)
	filterPlacebo := astiav.FindFilterByName(FilterName)
	switch {
	case filterSource == nil:
		return nil, ErrFilterNotFound{Name: FilterNameSource}
	case filterSink == nil:
		return nil, ErrFilterNotFound{Name: FilterNameSink}
	case filterPlacebo == nil:
		return nil, ErrFilterNotFound{Name: FilterName}
	}

	device, err := astiav.CreateHardwareDeviceContext(b.DeviceType.Astiav(), b.DeviceName, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to create the %s device context: %w", b.DeviceType, err)
	}

	graph := astiav.AllocFilterGraph()
	if graph == nil {
		device.Free()
		return nil, fmt.Errorf("unable to allocate the filter graph")
	}
	defer func() {
		if _err != nil {
			graph.Free()
			device.Free()
		}
	}()

	srcCtx, err := graph.NewBuffersrcFilterContext(filterSource, "in")
	if err != nil {
		return nil, fmt.Errorf("unable to create the buffersrc context: %w", err)
	}

	sinkCtx, err := graph.NewBuffersinkFilterContext(filterSink, "out")
	if err != nil {
		return nil, fmt.Errorf("unable to create the buffersink context: %w", err)
	}

	if err := initSource(srcCtx, params.Decoder); err != nil {
		return nil, err
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(srcCtx.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(sinkCtx.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	description := "[in]" + b.FilterDescription(params) + "[out]"
	logger.Debugf(ctx, "filter graph: %s", description)
	if err := graph.Parse(description, inputs, outputs); err != nil {
		return nil, fmt.Errorf("unable to parse the filter graph '%s': %w", description, err)
	}

	// libplacebo picks up the device when the graph is configured
	bound := 0
	for _, fc := range graph.Filters() {
		if !fc.Filter().Flags().Has(astiav.FilterFlagHardwareDevice) {
			continue
		}
		logger.Tracef(ctx, "binding the %s device to '%s'", b.DeviceType, fc.Filter().Name())
		fc.SetHardwareDeviceContext(device)
		bound++
	}
	if bound == 0 {
		return nil, fmt.Errorf("no filter in the graph accepts a hardware device")
	}

	if err := graph.Configure(); err != nil {
		return nil, fmt.Errorf("unable to configure the filter graph: %w", err)
	}

	return &types.GraphHandles{
		Graph:  graph,
		Source: srcCtx,
		Sink:   sinkCtx,
		Device: device,
	}, nil
}

func initSource(
	srcCtx *astiav.BuffersrcFilterContext,
	decoder types.DecoderContext,
) error {
	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()
	params.SetWidth(decoder.Width())
	params.SetHeight(decoder.Height())
	params.SetPixelFormat(decoder.PixelFormat())
	params.SetSampleAspectRatio(decoder.SampleAspectRatio())
	params.SetTimeBase(decoder.TimeBase())
	if hwFrames := decoder.HardwareFramesContext(); hwFrames != nil {
		params.SetHardwareFramesContext(hwFrames)
	}

	if err := srcCtx.SetParameters(params); err != nil {
		return fmt.Errorf("unable to set the buffersrc parameters: %w", err)
	}
	if err := srcCtx.Initialize(nil); err != nil {
		return fmt.Errorf("unable to initialize the buffersrc: %w", err)
	}
	return nil
}

type ErrFilterNotFound struct {
	Name string
}

func (e ErrFilterNotFound) Error() string {
	return fmt.Sprintf("filter '%s' is not found (is libav built with it?)", e.Name)
}
