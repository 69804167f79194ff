package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplacebo/config"
	"github.com/xaionaro-go/avplacebo/shaderfilter"
	"github.com/xaionaro-go/avplacebo/types"
)

func TestEncoderTimeBase(t *testing.T) {
	for _, tc := range []struct {
		name     string
		override types.Rational
		guessed  astiav.Rational
		stream   astiav.Rational
		expected astiav.Rational
	}{
		{"override", types.Rational{Num: 30000, Den: 1001}, astiav.NewRational(25, 1), astiav.NewRational(1, 1000), astiav.NewRational(1001, 30000)},
		{"guessed", types.Rational{}, astiav.NewRational(25, 1), astiav.NewRational(1, 1000), astiav.NewRational(1, 25)},
		{"fallback", types.Rational{}, astiav.NewRational(0, 1), astiav.NewRational(1, 90000), astiav.NewRational(1, 90000)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, EncoderTimeBase(tc.override, tc.guessed, tc.stream))
		})
	}
}

func TestNewGraphBuilder(t *testing.T) {
	cfg := config.Default().Filter
	cfg.ExtraArgs = map[string]string{"deband": "1"}

	b := NewGraphBuilder(cfg, astiav.PixelFormatYuv420P)
	require.Equal(t, types.HardwareDeviceTypeVulkan, b.DeviceType)
	require.Equal(t, config.DefaultUpscaler, b.Upscaler)
	require.Equal(t, map[string]string{"deband": "1", "format": "yuv420p"}, b.ExtraArgs)
	require.Equal(t, map[string]string{"deband": "1"}, cfg.ExtraArgs)

	cfg.ExtraArgs = map[string]string{"format": "nv12"}
	b = NewGraphBuilder(cfg, astiav.PixelFormatYuv420P)
	require.Equal(t, "nv12", b.ExtraArgs["format"])
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), config.Default())
	require.Error(t, err)
}

const passthroughShader = `//!HOOK MAIN
//!BIND HOOKED
//!DESC passthrough
vec4 hook() {
    return HOOKED_texOff(0);
}
`

// TestTranscodeTestSource needs libavdevice (lavfi), a libav build with
// the libplacebo filter and a Vulkan device; it is skipped otherwise.
func TestTranscodeTestSource(t *testing.T) {
	if astiav.FindInputFormat("lavfi") == nil {
		t.Skip("lavfi is not available")
	}
	if astiav.FindFilterByName("libplacebo") == nil {
		t.Skip("the libplacebo filter is not available")
	}
	if astiav.FindEncoderByName("mpeg4") == nil {
		t.Skip("the mpeg4 encoder is not available")
	}

	ctx := context.Background()
	dir := t.TempDir()
	shaderPath := filepath.Join(dir, "passthrough.glsl")
	require.NoError(t, os.WriteFile(shaderPath, []byte(passthroughShader), 0o644))

	cfg := config.Default()
	cfg.InputFormat = "lavfi"
	cfg.Input = "testsrc=duration=1:size=96x64:rate=25"
	cfg.Output = filepath.Join(dir, "out.mkv")
	cfg.Filter.Width = 192
	cfg.Filter.Height = 128
	cfg.Filter.Shader = shaderPath
	cfg.Encoder.Codec = "mpeg4"

	tr, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("unable to set up the transcoder in this environment: %v", err)
	}

	defer tr.Close(ctx)

	err = tr.Run(ctx)
	if errors.As(err, &shaderfilter.ErrGraphConstruction{}) {
		t.Skipf("the shader filter cannot run in this environment: %v", err)
	}
	require.NoError(t, err)

	stats := tr.Stats.Snapshot()
	require.Equal(t, uint64(25), stats.FramesDecoded)
	require.Equal(t, uint64(25), stats.FramesFiltered)
	require.NotZero(t, stats.PacketsEncoded)
	require.NotZero(t, stats.BytesWritten)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Close(ctx))
		}()
	}
	wg.Wait()

	info, err := os.Stat(cfg.Output)
	require.NoError(t, err)
	require.NotZero(t, info.Size())
}
