package shaderfilter

import (
	"context"
	"fmt"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplacebo/shaderfilter/types"
)

// fakeGraph is an identity filter graph which holds back `latency` frames
// before emitting anything, like a filter with lookahead.
type fakeGraph struct {
	latency  int
	timeBase astiav.Rational

	addErr  error
	eosErr  error
	getErr  error
	getErrN int // GetFrame fails with getErr on this call (1-based); 0 means always

	queue    []int64
	eos      bool
	addCalls int
	getCalls int
	released *[]string
}

type fakeSource struct{ *fakeGraph }
type fakeSink struct{ *fakeGraph }
type fakeGraphHandle struct{ *fakeGraph }
type fakeDevice struct{ *fakeGraph }

// fakeOwnedSource and fakeOwnedSink have no Free: they are owned by the graph.
type fakeOwnedSource struct{ *fakeGraph }
type fakeOwnedSink struct{ *fakeGraph }

func (g *fakeGraph) addFrame(f *astiav.Frame) error {
	if f == nil {
		if g.eosErr != nil {
			return g.eosErr
		}
		g.eos = true
		return nil
	}
	g.addCalls++
	if g.addErr != nil {
		return g.addErr
	}
	g.queue = append(g.queue, f.Pts())
	return nil
}

func (g *fakeGraph) getFrame(out *astiav.Frame) error {
	g.getCalls++
	if g.getErr != nil && (g.getErrN == 0 || g.getErrN == g.getCalls) {
		return g.getErr
	}
	if len(g.queue) > g.latency || (g.eos && len(g.queue) > 0) {
		out.SetPts(g.queue[0])
		g.queue = g.queue[1:]
		return nil
	}
	if g.eos {
		return astiav.ErrEof
	}
	return astiav.ErrEagain
}

func (g *fakeGraph) release(name string) {
	if g.released != nil {
		*g.released = append(*g.released, name)
	}
}

func (s fakeSource) AddFrame(f *astiav.Frame, _ astiav.BuffersrcFlags) error { return s.addFrame(f) }
func (s fakeSource) Free()                                                  { s.release("source") }

func (s fakeOwnedSource) AddFrame(f *astiav.Frame, _ astiav.BuffersrcFlags) error {
	return s.addFrame(f)
}

func (s fakeSink) GetFrame(f *astiav.Frame, _ astiav.BuffersinkFlags) error { return s.getFrame(f) }
func (s fakeSink) TimeBase() astiav.Rational                                { return s.timeBase }
func (s fakeSink) Free()                                                    { s.release("sink") }

func (s fakeOwnedSink) GetFrame(f *astiav.Frame, _ astiav.BuffersinkFlags) error {
	return s.getFrame(f)
}
func (s fakeOwnedSink) TimeBase() astiav.Rational { return s.timeBase }

func (g fakeGraphHandle) Free() { g.release("graph") }
func (d fakeDevice) Free()      { d.release("device") }

func (g *fakeGraph) handles() *types.GraphHandles {
	return &types.GraphHandles{
		Graph:  fakeGraphHandle{g},
		Source: fakeSource{g},
		Sink:   fakeSink{g},
		Device: fakeDevice{g},
	}
}

type fakeBuilder struct {
	graph  *fakeGraph
	err    error
	build  func(params types.GraphParams) (*types.GraphHandles, error)
	calls  int
	params types.GraphParams
}

func (b *fakeBuilder) BuildGraph(
	ctx context.Context,
	params types.GraphParams,
) (*types.GraphHandles, error) {
	b.calls++
	b.params = params
	if b.build != nil {
		return b.build(params)
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.graph.timeBase == (astiav.Rational{}) {
		// the graph negotiates the decoder's time base on the sink input
		b.graph.timeBase = params.Decoder.TimeBase()
	}
	return b.graph.handles(), nil
}

type fakeDecoder struct {
	timeBase astiav.Rational
}

func (d fakeDecoder) PixelFormat() astiav.PixelFormat                       { return astiav.PixelFormatYuv420P }
func (d fakeDecoder) HardwareFramesContext() *astiav.HardwareFramesContext { return nil }
func (d fakeDecoder) TimeBase() astiav.Rational                             { return d.timeBase }
func (d fakeDecoder) Width() int                                            { return 640 }
func (d fakeDecoder) Height() int                                           { return 360 }
func (d fakeDecoder) SampleAspectRatio() astiav.Rational                    { return astiav.NewRational(1, 1) }

type fakeEncoder struct {
	timeBase astiav.Rational
}

func (e fakeEncoder) TimeBase() astiav.Rational { return e.timeBase }

type resolverFunc func(string) string

func (fn resolverFunc) ResolveShader(id string) string { return fn(id) }

// frameTracker allocates output frame holders and checks none of them leak.
type frameTracker struct {
	live   map[*astiav.Frame]struct{}
	allocs int
	frees  int
	fail   bool
}

func newFrameTracker() *frameTracker {
	return &frameTracker{live: map[*astiav.Frame]struct{}{}}
}

func (t *frameTracker) alloc() *astiav.Frame {
	if t.fail {
		return nil
	}
	f := astiav.AllocFrame()
	t.live[f] = struct{}{}
	t.allocs++
	return f
}

func (t *frameTracker) free(f *astiav.Frame) {
	if _, ok := t.live[f]; !ok {
		panic(fmt.Sprintf("double free or foreign frame %p", f))
	}
	delete(t.live, f)
	t.frees++
	f.Free()
}

func (t *frameTracker) requireLive(tb testing.TB, expected int) {
	tb.Helper()
	require.Len(tb, t.live, expected)
}

type testEnv struct {
	graph    *fakeGraph
	builder  *fakeBuilder
	frames   *frameTracker
	filter   *Filter
	released []string
}

func newTestEnv(latency int) *testEnv {
	env := &testEnv{
		frames: newFrameTracker(),
	}
	env.graph = &fakeGraph{
		latency:  latency,
		released: &env.released,
	}
	env.builder = &fakeBuilder{graph: env.graph}
	env.filter = New(1280, 720, "passthrough",
		OptionGraphBuilder{env.builder},
		OptionShaderResolver{resolverFunc(func(id string) string { return "/shaders/" + id + ".glsl" })},
		OptionFrameAllocator{Alloc: env.frames.alloc, Free: env.frames.free},
	)
	return env
}

func (env *testEnv) init(t *testing.T, decoderTB, encoderTB astiav.Rational) {
	t.Helper()
	require.NoError(t, env.filter.Init(
		context.Background(),
		fakeDecoder{timeBase: decoderTB},
		fakeEncoder{timeBase: encoderTB},
	))
}

func newInputFrame(t *testing.T, pts int64) *astiav.Frame {
	t.Helper()
	f := astiav.AllocFrame()
	require.NotNil(t, f)
	t.Cleanup(f.Free)
	f.SetPts(pts)
	return f
}
