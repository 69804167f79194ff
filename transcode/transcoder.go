// Package transcode re-encodes the video stream of a media file, running every
// decoded frame through the shader filter on the way.
package transcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avplacebo/config"
	"github.com/xaionaro-go/avplacebo/logger"
	"github.com/xaionaro-go/avplacebo/resource"
	"github.com/xaionaro-go/avplacebo/shaderfilter"
	"github.com/xaionaro-go/avplacebo/shaderfilter/libplacebo"
	"github.com/xaionaro-go/avplacebo/types"
	"github.com/xaionaro-go/xsync"
)

type Transcoder struct {
	Config config.Config
	Stats  Stats

	locker xsync.Mutex
	closer *astikit.Closer
	closed bool

	inputFormatContext *astiav.FormatContext
	inputStream        *astiav.Stream
	decoderCodec       *astiav.Codec
	decoderContext     *astiav.CodecContext
	hwPixelFormat      astiav.PixelFormat

	outputFormatContext *astiav.FormatContext
	outputStream        *astiav.Stream
	encoderContext      *astiav.CodecContext

	filter *shaderfilter.Filter

	packet        *astiav.Packet
	decodedFrame  *astiav.Frame
	encodedPacket *astiav.Packet
}

// New opens the input, the decoder, the encoder and the output. The shader
// filter is initialized on the first decoded frame, when the decoder output
// format is known.
func New(
	ctx context.Context,
	cfg config.Config,
) (_ret *Transcoder, _err error) {
	logger.Debugf(ctx, "New(ctx, %#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/New: %v", _err) }()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &Transcoder{
		Config: cfg,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = t.Close(ctx)
		}
	}()

	if err := t.openInput(ctx); err != nil {
		return nil, fmt.Errorf("unable to open the input '%s': %w", cfg.Input, err)
	}
	if err := t.openDecoder(ctx); err != nil {
		return nil, fmt.Errorf("unable to open the decoder: %w", err)
	}
	if err := t.openOutput(ctx); err != nil {
		return nil, fmt.Errorf("unable to open the output '%s': %w", cfg.Output, err)
	}

	t.filter = shaderfilter.New(
		cfg.Filter.Width, cfg.Filter.Height,
		cfg.Filter.Shader,
		shaderfilter.OptionGraphBuilder{GraphBuilder: NewGraphBuilder(cfg.Filter, t.encoderContext.PixelFormat())},
		shaderfilter.OptionShaderResolver{ShaderResolver: resource.NewFinder(shaderfilter.DefaultAppName, cfg.ResourceRoots...)},
	)

	t.packet = astiav.AllocPacket()
	t.closer.Add(t.packet.Free)
	t.decodedFrame = astiav.AllocFrame()
	t.closer.Add(t.decodedFrame.Free)
	t.encodedPacket = astiav.AllocPacket()
	t.closer.Add(t.encodedPacket.Free)
	return t, nil
}

// NewGraphBuilder configures the libplacebo graph to output frames in the
// encoder's pixel format unless the format is requested explicitly.
func NewGraphBuilder(
	cfg config.FilterConfig,
	outputPixelFormat astiav.PixelFormat,
) *libplacebo.Builder {
	args := make(map[string]string, len(cfg.ExtraArgs)+1)
	for k, v := range cfg.ExtraArgs {
		args[k] = v
	}
	if _, ok := args["format"]; !ok && outputPixelFormat != astiav.PixelFormatNone {
		args["format"] = outputPixelFormat.String()
	}
	return &libplacebo.Builder{
		DeviceType: cfg.Device,
		DeviceName: cfg.DeviceName,
		Upscaler:   cfg.Upscaler,
		ExtraArgs:  args,
	}
}

// EncoderTimeBase is the reverse of the frame rate: the configured one if set,
// otherwise the guessed one. If neither is known the input stream time base
// is used.
func EncoderTimeBase(
	frameRateOverride types.Rational,
	guessedFrameRate astiav.Rational,
	streamTimeBase astiav.Rational,
) astiav.Rational {
	if !frameRateOverride.IsZero() {
		return frameRateOverride.Reverse().Astiav()
	}
	if guessedFrameRate.Num() > 0 && guessedFrameRate.Den() > 0 {
		return astiav.NewRational(guessedFrameRate.Den(), guessedFrameRate.Num())
	}
	return streamTimeBase
}

func (t *Transcoder) openInput(ctx context.Context) error {
	t.inputFormatContext = astiav.AllocFormatContext()
	if t.inputFormatContext == nil {
		return errors.New("unable to allocate the input format context")
	}
	t.closer.Add(t.inputFormatContext.Free)

	var inputFormat *astiav.InputFormat
	if t.Config.InputFormat != "" {
		inputFormat = astiav.FindInputFormat(t.Config.InputFormat)
		if inputFormat == nil {
			return fmt.Errorf("unknown input format '%s'", t.Config.InputFormat)
		}
	}

	if err := t.inputFormatContext.OpenInput(t.Config.Input, inputFormat, nil); err != nil {
		return fmt.Errorf("unable to open: %w", err)
	}
	t.closer.Add(t.inputFormatContext.CloseInput)

	if err := t.inputFormatContext.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("unable to find the stream info: %w", err)
	}

	for _, stream := range t.inputFormatContext.Streams() {
		if stream.CodecParameters().MediaType() != astiav.MediaTypeVideo {
			logger.Debugf(ctx, "dropping stream #%d: %s", stream.Index(), stream.CodecParameters().MediaType())
			continue
		}
		if t.inputStream != nil {
			logger.Debugf(ctx, "dropping extra video stream #%d", stream.Index())
			continue
		}
		t.inputStream = stream
	}
	if t.inputStream == nil {
		return errors.New("no video stream found")
	}
	logger.Debugf(ctx, "using the input stream #%d", t.inputStream.Index())
	return nil
}

func (t *Transcoder) openDecoder(ctx context.Context) error {
	params := t.inputStream.CodecParameters()
	t.decoderCodec = astiav.FindDecoder(params.CodecID())
	if t.decoderCodec == nil {
		return fmt.Errorf("no decoder for codec %s", params.CodecID())
	}

	t.decoderContext = astiav.AllocCodecContext(t.decoderCodec)
	if t.decoderContext == nil {
		return errors.New("unable to allocate the decoder context")
	}
	t.closer.Add(t.decoderContext.Free)

	if err := params.ToCodecContext(t.decoderContext); err != nil {
		return fmt.Errorf("unable to copy the codec parameters: %w", err)
	}
	t.decoderContext.SetFramerate(t.inputFormatContext.GuessFrameRate(t.inputStream, nil))

	if t.Config.Decoder.HardwareDeviceType != types.HardwareDeviceTypeNone {
		if err := t.initHardwareDecoding(ctx); err != nil {
			return fmt.Errorf("unable to initialize hardware decoding: %w", err)
		}
	}

	if err := t.decoderContext.Open(t.decoderCodec, nil); err != nil {
		return fmt.Errorf("unable to open the decoder context: %w", err)
	}
	t.decoderContext.SetTimeBase(t.inputStream.TimeBase())
	return nil
}

func (t *Transcoder) initHardwareDecoding(ctx context.Context) (_err error) {
	hwType := t.Config.Decoder.HardwareDeviceType
	hwName := t.Config.Decoder.HardwareDeviceName
	logger.Debugf(ctx, "initHardwareDecoding(%s, '%s')", hwType, hwName)
	defer func() { logger.Debugf(ctx, "/initHardwareDecoding(%s, '%s'): %v", hwType, hwName, _err) }()

	t.hwPixelFormat = astiav.PixelFormatNone
	for _, hwCfg := range t.decoderCodec.HardwareConfigs() {
		if hwCfg.HardwareDeviceType() != hwType.Astiav() {
			continue
		}
		if !hwCfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			logger.Tracef(ctx, "skipping %v: no device context support", hwCfg.PixelFormat())
			continue
		}
		t.hwPixelFormat = hwCfg.PixelFormat()
		break
	}
	if t.hwPixelFormat == astiav.PixelFormatNone {
		return fmt.Errorf("decoder '%s' does not support hardware device type '%s'", t.decoderCodec.Name(), hwType)
	}

	hwDeviceContext, err := astiav.CreateHardwareDeviceContext(hwType.Astiav(), hwName, nil, 0)
	if err != nil {
		return fmt.Errorf("unable to create hardware (%s:%s) device context: %w", hwType, hwName, err)
	}
	t.closer.Add(hwDeviceContext.Free)
	t.decoderContext.SetHardwareDeviceContext(hwDeviceContext)

	t.decoderContext.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == t.hwPixelFormat {
				return pf
			}
		}
		logger.Errorf(ctx, "the decoder does not offer the hardware pixel format %s", t.hwPixelFormat)
		return astiav.PixelFormatNone
	})
	return nil
}

func (t *Transcoder) openOutput(ctx context.Context) error {
	formatName := t.Config.OutputFormat
	if formatName == "" {
		formatName = OutputFormatName(t.Config.Output)
	}
	logger.Debugf(ctx, "output format name: '%s'", formatName)

	var err error
	t.outputFormatContext, err = astiav.AllocOutputFormatContext(nil, formatName, t.Config.Output)
	if err != nil {
		return fmt.Errorf("unable to allocate the output format context: %w", err)
	}
	if t.outputFormatContext == nil {
		return errors.New("unable to allocate the output format context")
	}
	t.closer.Add(t.outputFormatContext.Free)

	if err := t.openEncoder(ctx); err != nil {
		return fmt.Errorf("unable to open the encoder: %w", err)
	}

	t.outputStream = t.outputFormatContext.NewStream(nil)
	if t.outputStream == nil {
		return errors.New("unable to create the output stream")
	}
	if err := t.outputStream.CodecParameters().FromCodecContext(t.encoderContext); err != nil {
		return fmt.Errorf("unable to copy the codec parameters: %w", err)
	}
	t.outputStream.SetTimeBase(t.encoderContext.TimeBase())

	if !t.outputFormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioContext, err := astiav.OpenIOContext(
			t.Config.Output,
			astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
			nil,
			nil,
		)
		if err != nil {
			return fmt.Errorf("unable to open the IO context: %w", err)
		}
		t.closer.AddWithError(ioContext.Close)
		t.outputFormatContext.SetPb(ioContext)
	}

	if err := t.outputFormatContext.WriteHeader(nil); err != nil {
		return fmt.Errorf("unable to write the header: %w", err)
	}
	return nil
}

func (t *Transcoder) openEncoder(ctx context.Context) error {
	cfg := t.Config.Encoder
	encoderCodec := astiav.FindEncoderByName(cfg.Codec)
	if encoderCodec == nil {
		return fmt.Errorf("encoder '%s' not found", cfg.Codec)
	}

	t.encoderContext = astiav.AllocCodecContext(encoderCodec)
	if t.encoderContext == nil {
		return errors.New("unable to allocate the encoder context")
	}
	t.closer.Add(t.encoderContext.Free)

	t.encoderContext.SetWidth(t.Config.Filter.Width)
	t.encoderContext.SetHeight(t.Config.Filter.Height)
	if pfs := encoderCodec.PixelFormats(); len(pfs) > 0 {
		t.encoderContext.SetPixelFormat(pfs[0])
	} else {
		t.encoderContext.SetPixelFormat(astiav.PixelFormatYuv420P)
	}
	t.encoderContext.SetSampleAspectRatio(t.decoderContext.SampleAspectRatio())

	timeBase := EncoderTimeBase(
		cfg.FrameRate,
		t.decoderContext.Framerate(),
		t.inputStream.TimeBase(),
	)
	t.encoderContext.SetTimeBase(timeBase)
	t.encoderContext.SetFramerate(astiav.NewRational(timeBase.Den(), timeBase.Num()))
	if cfg.BitRate > 0 {
		t.encoderContext.SetBitRate(cfg.BitRate)
	}
	if t.outputFormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		t.encoderContext.SetFlags(t.encoderContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	var options *astiav.Dictionary
	if len(cfg.Options) > 0 {
		options = astiav.NewDictionary()
		t.closer.Add(options.Free)
		for k, v := range cfg.Options {
			if err := options.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
				return fmt.Errorf("unable to set option '%s' to '%s': %w", k, v, err)
			}
		}
	}

	logger.Debugf(ctx, "opening encoder '%s': %dx%d %s, time base %s",
		encoderCodec.Name(),
		t.encoderContext.Width(), t.encoderContext.Height(),
		t.encoderContext.PixelFormat(), timeBase,
	)
	if err := t.encoderContext.Open(encoderCodec, options); err != nil {
		return fmt.Errorf("unable to open the encoder context: %w", err)
	}
	return nil
}

// Run transcodes until the end of the input or until ctx is cancelled.
func (t *Transcoder) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v; %s", _err, &t.Stats) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := t.inputFormatContext.ReadFrame(t.packet)
		if err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("unable to read a packet: %w", err)
		}

		if err := t.decodePacket(ctx, t.packet); err != nil {
			return err
		}
	}

	return t.finish(ctx)
}

func (t *Transcoder) decodePacket(ctx context.Context, pkt *astiav.Packet) error {
	defer pkt.Unref()
	if pkt.StreamIndex() != t.inputStream.Index() {
		return nil
	}
	t.Stats.PacketsRead.Inc()

	pkt.RescaleTs(t.inputStream.TimeBase(), t.decoderContext.TimeBase())
	if err := t.decoderContext.SendPacket(pkt); err != nil {
		return fmt.Errorf("unable to send a packet to the decoder: %w", err)
	}
	return t.receiveFrames(ctx)
}

func (t *Transcoder) receiveFrames(ctx context.Context) error {
	for {
		err := t.decoderContext.ReceiveFrame(t.decodedFrame)
		if err != nil {
			if shaderfilter.IsTransient(err) {
				return nil
			}
			return fmt.Errorf("unable to receive a frame from the decoder: %w", err)
		}

		err = t.filterFrame(ctx, t.decodedFrame)
		t.decodedFrame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *Transcoder) filterFrame(ctx context.Context, frame *astiav.Frame) error {
	t.Stats.FramesDecoded.Inc()

	if !t.filter.IsInitialized() {
		if err := t.filter.Init(ctx, t.decoderContext, t.encoderContext); err != nil {
			return fmt.Errorf("unable to initialize %s: %w", t.filter, err)
		}
		logger.Debugf(ctx, "initialized %s (shader: '%s')", t.filter, t.filter.ShaderPath())
	}

	res, err := t.filter.ProcessFrame(ctx, frame)
	if err != nil {
		return fmt.Errorf("unable to filter a frame: %w", err)
	}
	if res.IsPending() {
		t.Stats.FramesPending.Inc()
		return nil
	}
	t.Stats.FramesFiltered.Inc()
	defer t.filter.ReleaseFrame(res.Frame)
	return t.encodeFrame(ctx, res.Frame)
}

// finish drains the decoder, the filter and the encoder, and writes the
// trailer.
func (t *Transcoder) finish(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "finish")
	defer func() { logger.Debugf(ctx, "/finish: %v", _err) }()

	if err := t.decoderContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("unable to drain the decoder: %w", err)
	}
	if err := t.receiveFrames(ctx); err != nil {
		return err
	}

	if t.filter.IsInitialized() {
		frames, err := t.filter.Flush(ctx, nil)
		for _, frame := range frames {
			t.Stats.FramesFiltered.Inc()
			if err == nil {
				err = t.encodeFrame(ctx, frame)
			}
			t.filter.ReleaseFrame(frame)
		}
		if err != nil {
			return fmt.Errorf("unable to flush the shader filter: %w", err)
		}
	} else {
		logger.Warnf(ctx, "no frames were decoded")
	}

	if err := t.encodeFrame(ctx, nil); err != nil {
		return fmt.Errorf("unable to drain the encoder: %w", err)
	}

	if err := t.outputFormatContext.WriteTrailer(); err != nil {
		return fmt.Errorf("unable to write the trailer: %w", err)
	}
	return nil
}

// encodeFrame sends the frame to the encoder (nil drains it) and writes every
// resulting packet.
func (t *Transcoder) encodeFrame(ctx context.Context, frame *astiav.Frame) error {
	if frame != nil {
		frame.SetPictureType(astiav.PictureTypeNone)
	}
	if err := t.encoderContext.SendFrame(frame); err != nil {
		return fmt.Errorf("unable to send a frame to the encoder: %w", err)
	}

	for {
		err := t.encoderContext.ReceivePacket(t.encodedPacket)
		if err != nil {
			if shaderfilter.IsTransient(err) {
				return nil
			}
			return fmt.Errorf("unable to receive a packet from the encoder: %w", err)
		}

		t.encodedPacket.SetStreamIndex(t.outputStream.Index())
		t.encodedPacket.RescaleTs(t.encoderContext.TimeBase(), t.outputStream.TimeBase())
		t.Stats.PacketsEncoded.Inc()
		t.Stats.BytesWritten.Add(uint64(t.encodedPacket.Size()))
		logger.Tracef(ctx, "writing a packet: pts:%d size:%d", t.encodedPacket.Pts(), t.encodedPacket.Size())

		err = t.outputFormatContext.WriteInterleavedFrame(t.encodedPacket)
		t.encodedPacket.Unref()
		if err != nil {
			return fmt.Errorf("unable to write a packet: %w", err)
		}
	}
}

// Close releases everything. It is safe to call it concurrently and more
// than once.
func (t *Transcoder) Close(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &t.locker, t.closeLocked, ctx)
}

func (t *Transcoder) closeLocked(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "closeLocked")
	defer func() { logger.Debugf(ctx, "/closeLocked: %v", _err) }()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.filter != nil {
		if err := t.filter.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close %s: %v", t.filter, err)
		}
	}
	return t.closer.Close()
}
