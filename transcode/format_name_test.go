package transcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputFormatName(t *testing.T) {
	for output, expected := range map[string]string{
		"out.mkv":                     "matroska",
		"/tmp/OUT.MP4":                "mp4",
		"file:///tmp/out.webm":        "webm",
		`C:\videos\out.mkv`:           "matroska",
		"rtmp://localhost/live/key":   "flv",
		"srt://127.0.0.1:9000":        "mpegts",
		"rtsp://camera.local/stream":  "rtsp",
		"out.y4m":                     "",
		"gopher://example.com/output": "",
	} {
		t.Run(output, func(t *testing.T) {
			require.Equal(t, expected, OutputFormatName(output))
		})
	}
}
