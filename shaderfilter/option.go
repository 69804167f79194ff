package shaderfilter

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplacebo/frame"
	"github.com/xaionaro-go/avplacebo/resource"
	"github.com/xaionaro-go/avplacebo/shaderfilter/libplacebo"
	"github.com/xaionaro-go/avplacebo/shaderfilter/types"
)

// DefaultAppName names the resource directories searched for built-in shaders.
const DefaultAppName = "avplacebo"

type Config struct {
	GraphBuilder   types.GraphBuilder
	ShaderResolver types.ShaderResolver
	AllocFrame     func() *astiav.Frame
	FreeFrame      func(*astiav.Frame)
}

type Option interface {
	apply(*Config)
}

type Options []Option

func (s Options) apply(cfg *Config) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s Options) Config() Config {
	cfg := Config{
		GraphBuilder:   libplacebo.NewBuilder(),
		ShaderResolver: resource.NewFinder(DefaultAppName),
		AllocFrame:     frame.Get,
		FreeFrame:      func(f *astiav.Frame) { frame.Put(f) },
	}
	s.apply(&cfg)
	return cfg
}

// OptionGraphBuilder replaces the graph-construction routine.
type OptionGraphBuilder struct {
	types.GraphBuilder
}

func (opt OptionGraphBuilder) apply(cfg *Config) {
	cfg.GraphBuilder = opt.GraphBuilder
}

// OptionShaderResolver replaces the shader lookup, e.g. to search additional
// resource roots.
type OptionShaderResolver struct {
	types.ShaderResolver
}

func (opt OptionShaderResolver) apply(cfg *Config) {
	cfg.ShaderResolver = opt.ShaderResolver
}

// OptionFrameAllocator replaces the allocation of output frame holders. Alloc
// may return nil to report an allocation failure.
type OptionFrameAllocator struct {
	Alloc func() *astiav.Frame
	Free  func(*astiav.Frame)
}

func (opt OptionFrameAllocator) apply(cfg *Config) {
	if opt.Alloc != nil {
		cfg.AllocFrame = opt.Alloc
	}
	if opt.Free != nil {
		cfg.FreeFrame = opt.Free
	}
}
