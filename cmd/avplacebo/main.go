package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avplacebo/config"
	"github.com/xaionaro-go/avplacebo/logger"
	"github.com/xaionaro-go/avplacebo/transcode"
	"github.com/xaionaro-go/observability"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <input> <output>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	cfg := config.Default()
	configPath := pflag.String("config", "", "path to a YAML config; the flags override its values")
	pflag.IntVar(&cfg.Filter.Width, "width", 0, "output width")
	pflag.IntVar(&cfg.Filter.Height, "height", 0, "output height")
	pflag.StringVar(&cfg.Filter.Shader, "shader", "", "shader name (looked up in the resource roots) or path")
	pflag.Var(&cfg.Filter.Device, "device", "the hardware device type the shader runs on")
	pflag.StringVar(&cfg.Filter.DeviceName, "device-name", "", "the hardware device the shader runs on")
	pflag.StringVar(&cfg.InputFormat, "input-format", "", "force the input format")
	pflag.StringVar(&cfg.OutputFormat, "output-format", "", "force the output format")
	pflag.StringVar(&cfg.Encoder.Codec, "encoder", cfg.Encoder.Codec, "encoder name")
	pflag.Var(&cfg.Encoder.FrameRate, "frame-rate", "output frame rate, e.g. 30000/1001 (default: the input frame rate)")
	bitRate := pflag.String("bitrate", "", "encoder bit rate, e.g. 8M")
	pflag.Var(&cfg.Decoder.HardwareDeviceType, "hwaccel", "decoder hardware device type, e.g. vaapi (default none)")
	pflag.StringVar(&cfg.Decoder.HardwareDeviceName, "hwaccel-device", "", "decoder hardware device")
	pflag.StringSliceVar(&cfg.ResourceRoots, "resource-root", nil, "an extra directory to search for built-in shaders (may be repeated)")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg = overrideByFlags(*fileCfg, cfg)
	}
	switch len(pflag.Args()) {
	case 0:
	case 2:
		cfg.Input, cfg.Output = pflag.Arg(0), pflag.Arg(1)
	default:
		pflag.Usage()
		os.Exit(1)
	}
	if *bitRate != "" {
		v, err := humanize.ParseBytes(*bitRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unable to parse the bit rate '%s': %v\n", *bitRate, err)
			os.Exit(1)
		}
		cfg.Encoder.BitRate = int64(v)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		pflag.Usage()
		os.Exit(1)
	}
	loggerLevel, _ := cfg.Level()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)
	logger.Debugf(ctx, "config: %s", cfg)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	astiav.SetLogLevel(logger.LevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		l.Logf(
			logger.LevelFromAstiav(level),
			"%s%s",
			strings.TrimSpace(msg), cs,
		)
	})

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	observability.Go(ctx, func() {
		select {
		case <-ctx.Done():
		case sig := <-signalCh:
			l.Infof("received %v, stopping", sig)
			cancelFn()
		}
	})

	l.Debugf("opening '%s' -> '%s'...", cfg.Input, cfg.Output)
	transcoder, err := transcode.New(ctx, cfg)
	if err != nil {
		l.Fatal(err)
	}
	defer transcoder.Close(ctx)

	observability.Go(ctx, func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				statsJSON, err := json.Marshal(transcoder.Stats.Snapshot())
				if err != nil {
					l.Error(err)
					return
				}
				fmt.Printf("%s\n", statsJSON)
			}
		}
	})

	if err := transcoder.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Infof("interrupted: %s", &transcoder.Stats)
			return
		}
		transcoder.Close(ctx)
		l.Fatal(err)
	}
	fmt.Printf("done: %s\n", &transcoder.Stats)
}

// overrideByFlags applies on top of fileCfg the values of the flags that
// were set explicitly.
func overrideByFlags(fileCfg, flagCfg config.Config) config.Config {
	changed := pflag.CommandLine.Changed
	if changed("width") {
		fileCfg.Filter.Width = flagCfg.Filter.Width
	}
	if changed("height") {
		fileCfg.Filter.Height = flagCfg.Filter.Height
	}
	if changed("shader") {
		fileCfg.Filter.Shader = flagCfg.Filter.Shader
	}
	if changed("device") {
		fileCfg.Filter.Device = flagCfg.Filter.Device
	}
	if changed("device-name") {
		fileCfg.Filter.DeviceName = flagCfg.Filter.DeviceName
	}
	if changed("input-format") {
		fileCfg.InputFormat = flagCfg.InputFormat
	}
	if changed("output-format") {
		fileCfg.OutputFormat = flagCfg.OutputFormat
	}
	if changed("encoder") {
		fileCfg.Encoder.Codec = flagCfg.Encoder.Codec
	}
	if changed("frame-rate") {
		fileCfg.Encoder.FrameRate = flagCfg.Encoder.FrameRate
	}
	if changed("hwaccel") {
		fileCfg.Decoder.HardwareDeviceType = flagCfg.Decoder.HardwareDeviceType
	}
	if changed("hwaccel-device") {
		fileCfg.Decoder.HardwareDeviceName = flagCfg.Decoder.HardwareDeviceName
	}
	if changed("resource-root") {
		fileCfg.ResourceRoots = append(flagCfg.ResourceRoots, fileCfg.ResourceRoots...)
	}
	if changed("log-level") {
		fileCfg.LogLevel = flagCfg.LogLevel
	}
	return fileCfg
}
