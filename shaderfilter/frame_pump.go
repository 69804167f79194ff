package shaderfilter

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplacebo/logger"
)

// ProcessFrame feeds one decoded frame to the graph and tries to get one
// filtered frame back. The caller keeps the ownership of input.
//
// A Pending result is not an error: the graph needs more input first.
func (f *Filter) ProcessFrame(
	ctx context.Context,
	input *astiav.Frame,
) (_ret Result, _err error) {
	logger.Tracef(ctx, "ProcessFrame")
	defer func() { logger.Tracef(ctx, "/ProcessFrame: %s %v", _ret.Kind, _err) }()

	if !f.IsInitialized() {
		return Result{}, ErrNotInitialized{}
	}

	output := f.Config.AllocFrame()
	if output == nil {
		logger.Errorf(ctx, "unable to allocate an output frame")
		return Result{}, ErrAllocation{}
	}

	if err := f.source.AddFrame(input, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		f.Config.FreeFrame(output)
		err = ErrSubmit{Err: err}
		logger.Errorf(ctx, "%v", err)
		return Result{}, err
	}

	ok, err := f.pullFrame(ctx, output)
	switch {
	case err != nil:
		return Result{}, err
	case !ok:
		return Result{Kind: ResultKindPending}, nil
	}
	return Result{Kind: ResultKindReady, Frame: output}, nil
}

// Flush signals the end of stream to the graph and appends every frame it
// still holds to out, in presentation order. On a pull error the frames
// collected so far are returned together with the error.
func (f *Filter) Flush(
	ctx context.Context,
	out []*astiav.Frame,
) (_ret []*astiav.Frame, _err error) {
	logger.Debugf(ctx, "Flush")
	defer func() { logger.Debugf(ctx, "/Flush: %d %v", len(_ret), _err) }()

	if !f.IsInitialized() {
		return out, ErrNotInitialized{}
	}

	if err := f.source.AddFrame(nil, astiav.NewBuffersrcFlags()); err != nil {
		err = ErrSubmit{EndOfStream: true, Err: err}
		logger.Errorf(ctx, "%v", err)
		return out, err
	}

	for {
		output := f.Config.AllocFrame()
		if output == nil {
			logger.Errorf(ctx, "unable to allocate an output frame")
			return out, ErrAllocation{}
		}
		ok, err := f.pullFrame(ctx, output)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, output)
	}
}

// ReleaseFrame gives back a frame returned by ProcessFrame or Flush.
func (f *Filter) ReleaseFrame(frame *astiav.Frame) {
	if frame == nil {
		return
	}
	f.Config.FreeFrame(frame)
}

// pullFrame returns false if the graph has no frame to give (yet). output is
// released unless it is filled.
func (f *Filter) pullFrame(
	ctx context.Context,
	output *astiav.Frame,
) (bool, error) {
	err := f.sink.GetFrame(output, astiav.NewBuffersinkFlags())
	if err != nil {
		f.Config.FreeFrame(output)
		if IsTransient(err) {
			logger.Tracef(ctx, "no frame: %v", err)
			return false, nil
		}
		logger.Errorf(ctx, "error getting a frame from the filter graph: %v", err)
		return false, ErrPull{Err: err}
	}

	f.rescalePTS(output)
	return true, nil
}

// rescalePTS converts the PTS from the time base negotiated on the sink input
// to the encoder's.
func (f *Filter) rescalePTS(frame *astiav.Frame) {
	pts := frame.Pts()
	if pts == astiav.NoPtsValue {
		return
	}
	frame.SetPts(astiav.RescaleQ(pts, f.sink.TimeBase(), f.outputTimeBase))
}
