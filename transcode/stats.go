package transcode

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
)

// Stats are updated by Run and may be read concurrently.
type Stats struct {
	PacketsRead    atomic.Uint64
	FramesDecoded  atomic.Uint64
	FramesFiltered atomic.Uint64
	FramesPending  atomic.Uint64
	PacketsEncoded atomic.Uint64
	BytesWritten   atomic.Uint64
}

type StatsSnapshot struct {
	PacketsRead    uint64 `json:"packets_read"`
	FramesDecoded  uint64 `json:"frames_decoded"`
	FramesFiltered uint64 `json:"frames_filtered"`
	FramesPending  uint64 `json:"frames_pending"`
	PacketsEncoded uint64 `json:"packets_encoded"`
	BytesWritten   uint64 `json:"bytes_written"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PacketsRead:    s.PacketsRead.Load(),
		FramesDecoded:  s.FramesDecoded.Load(),
		FramesFiltered: s.FramesFiltered.Load(),
		FramesPending:  s.FramesPending.Load(),
		PacketsEncoded: s.PacketsEncoded.Load(),
		BytesWritten:   s.BytesWritten.Load(),
	}
}

func (s *Stats) String() string {
	return s.Snapshot().String()
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"read:%d decoded:%d filtered:%d pending:%d encoded:%d written:%s",
		s.PacketsRead,
		s.FramesDecoded,
		s.FramesFiltered,
		s.FramesPending,
		s.PacketsEncoded,
		humanize.Bytes(s.BytesWritten),
	)
}
