// Package config describes a transcoding run of the avplacebo tool.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avplacebo/logger"
	"github.com/xaionaro-go/avplacebo/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEncoder  = "libx264"
	DefaultUpscaler = "ewa_lanczos"
	DefaultLogLevel = "warning"
)

type Config struct {
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`

	// InputFormat forces the demuxer (e.g. "lavfi"); it is detected otherwise.
	InputFormat string `yaml:"input_format,omitempty"`

	// OutputFormat forces the muxer; it is guessed from Output otherwise.
	OutputFormat string `yaml:"output_format,omitempty"`

	Filter  FilterConfig  `yaml:"filter"`
	Decoder DecoderConfig `yaml:"decoder"`
	Encoder EncoderConfig `yaml:"encoder"`

	// ResourceRoots are searched for built-in shaders before the default roots.
	ResourceRoots []string `yaml:"resource_roots,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
}

type FilterConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Shader string `yaml:"shader"`

	Device     types.HardwareDeviceType `yaml:"device,omitempty"`
	DeviceName string                   `yaml:"device_name,omitempty"`
	Upscaler   string                   `yaml:"upscaler,omitempty"`

	// ExtraArgs are passed verbatim to the libplacebo filter.
	ExtraArgs map[string]string `yaml:"extra_args,omitempty"`
}

type DecoderConfig struct {
	HardwareDeviceType types.HardwareDeviceType `yaml:"hwaccel,omitempty"`
	HardwareDeviceName string                   `yaml:"hwaccel_device,omitempty"`
}

type EncoderConfig struct {
	Codec string `yaml:"codec,omitempty"`

	// FrameRate overrides the input frame rate; the encoder time base is its reverse.
	FrameRate types.Rational `yaml:"frame_rate,omitempty"`

	BitRate int64             `yaml:"bit_rate,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

// Default returns a configuration with every default applied and nothing
// else set.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

// Load reads and decodes a YAML configuration file. Unknown fields are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read the config file '%s': %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Filter.Device == types.HardwareDeviceTypeNone {
		cfg.Filter.Device = types.HardwareDeviceTypeVulkan
	}
	if cfg.Filter.Upscaler == "" {
		cfg.Filter.Upscaler = DefaultUpscaler
	}
	if cfg.Encoder.Codec == "" {
		cfg.Encoder.Codec = DefaultEncoder
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

func (cfg Config) Validate() error {
	if cfg.Input == "" {
		return fmt.Errorf("the input is not set")
	}
	if cfg.Output == "" {
		return fmt.Errorf("the output is not set")
	}
	if cfg.Filter.Width <= 0 || cfg.Filter.Height <= 0 {
		return fmt.Errorf("invalid output geometry %dx%d", cfg.Filter.Width, cfg.Filter.Height)
	}
	if cfg.Filter.Shader == "" {
		return fmt.Errorf("the shader is not set")
	}
	if cfg.Encoder.FrameRate.Den < 0 || cfg.Encoder.FrameRate.Num < 0 {
		return fmt.Errorf("invalid frame rate %s", cfg.Encoder.FrameRate)
	}
	if _, err := cfg.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (cfg Config) Level() (logger.Level, error) {
	var level logger.Level
	if err := level.Set(cfg.LogLevel); err != nil {
		return logger.LevelUndefined, fmt.Errorf("invalid log level '%s': %w", cfg.LogLevel, err)
	}
	return level, nil
}

func (cfg Config) String() string {
	return spew.Sdump(cfg)
}
