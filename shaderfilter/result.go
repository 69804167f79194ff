package shaderfilter

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

type ResultKind int

const (
	ResultKindUndefined ResultKind = iota
	// ResultKindReady means Result.Frame holds a filtered frame owned by the caller.
	ResultKindReady
	// ResultKindPending means the graph needs more input before it emits a
	// frame. It is not an error: keep feeding frames.
	ResultKindPending
)

func (k ResultKind) String() string {
	switch k {
	case ResultKindUndefined:
		return "<undefined>"
	case ResultKindReady:
		return "ready"
	case ResultKindPending:
		return "pending"
	default:
		return fmt.Sprintf("<unknown:%d>", int(k))
	}
}

type Result struct {
	Kind  ResultKind
	Frame *astiav.Frame
}

func (r Result) IsReady() bool {
	return r.Kind == ResultKindReady
}

func (r Result) IsPending() bool {
	return r.Kind == ResultKindPending
}
