package types

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

type freer struct{}

func (*freer) Free() {}

func TestGraphHandlesIsComplete(t *testing.T) {
	complete := func() *GraphHandles {
		return &GraphHandles{
			Graph:  &freer{},
			Source: &astiav.BuffersrcFilterContext{},
			Sink:   &astiav.BuffersinkFilterContext{},
			Device: &freer{},
		}
	}
	require.True(t, complete().IsComplete())

	var nilHandles *GraphHandles
	require.False(t, nilHandles.IsComplete())

	for name, mutate := range map[string]func(h *GraphHandles){
		"no-graph":        func(h *GraphHandles) { h.Graph = nil },
		"no-source":       func(h *GraphHandles) { h.Source = nil },
		"no-sink":         func(h *GraphHandles) { h.Sink = nil },
		"no-device":       func(h *GraphHandles) { h.Device = nil },
		"typed-nil-graph": func(h *GraphHandles) { h.Graph = (*astiav.FilterGraph)(nil) },
		"typed-nil-src":   func(h *GraphHandles) { h.Source = (*astiav.BuffersrcFilterContext)(nil) },
		"typed-nil-sink":  func(h *GraphHandles) { h.Sink = (*astiav.BuffersinkFilterContext)(nil) },
		"typed-nil-dev":   func(h *GraphHandles) { h.Device = (*astiav.HardwareDeviceContext)(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			h := complete()
			mutate(h)
			require.False(t, h.IsComplete())
		})
	}
}
