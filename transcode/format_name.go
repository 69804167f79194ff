package transcode

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// OutputFormatName guesses the muxer for outputs libav cannot guess from the
// file name alone (network URLs). An empty result leaves the guess to libav.
func OutputFormatName(output string) string {
	u, err := url.Parse(output)
	if err != nil || len(u.Scheme) < 2 {
		// not a URL, or a Windows drive letter
		return formatNameFromFileExtension(output)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return formatNameFromFileExtension(u.Path)
	case "rtmp", "rtmps":
		return "flv"
	case "srt", "udp", "tcp", "http", "https":
		return "mpegts"
	case "rtsp":
		return "rtsp"
	default:
		return ""
	}
}

func formatNameFromFileExtension(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case slices.Contains([]string{".mp4", ".m4v", ".mov"}, ext):
		return "mp4"
	case slices.Contains([]string{".mkv", ".mk3d"}, ext):
		return "matroska"
	case ext == ".webm":
		return "webm"
	case ext == ".flv":
		return "flv"
	case slices.Contains([]string{".ts", ".mts", ".m2ts"}, ext):
		return "mpegts"
	case ext == ".avi":
		return "avi"
	case ext == ".nut":
		return "nut"
	default:
		return ""
	}
}
