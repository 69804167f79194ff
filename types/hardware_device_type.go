// Package types holds the small value types shared by the configuration and
// the filter code.
package types

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"gopkg.in/yaml.v3"
)

// HardwareDeviceType selects a libav hardware device (a decoder accelerator or
// the GPU the shader runs on).
type HardwareDeviceType int

const (
	// the values match libav's enum AVHWDeviceType:
	HardwareDeviceTypeNone         = HardwareDeviceType(0x0)
	HardwareDeviceTypeVDPAU        = HardwareDeviceType(0x1)
	HardwareDeviceTypeCUDA         = HardwareDeviceType(0x2)
	HardwareDeviceTypeVAAPI        = HardwareDeviceType(0x3)
	HardwareDeviceTypeDXVA2        = HardwareDeviceType(0x4)
	HardwareDeviceTypeQSV          = HardwareDeviceType(0x5)
	HardwareDeviceTypeVideoToolbox = HardwareDeviceType(0x6)
	HardwareDeviceTypeD3D11VA      = HardwareDeviceType(0x7)
	HardwareDeviceTypeDRM          = HardwareDeviceType(0x8)
	HardwareDeviceTypeOpenCL       = HardwareDeviceType(0x9)
	HardwareDeviceTypeMediaCodec   = HardwareDeviceType(0xa)
	HardwareDeviceTypeVulkan       = HardwareDeviceType(0xb)
	endOfHardwareDeviceType        = HardwareDeviceTypeVulkan + 1
)

func (t HardwareDeviceType) String() string {
	switch t {
	case HardwareDeviceTypeNone:
		return "none"
	case HardwareDeviceTypeVDPAU:
		return "vdpau"
	case HardwareDeviceTypeCUDA:
		return "cuda"
	case HardwareDeviceTypeVAAPI:
		return "vaapi"
	case HardwareDeviceTypeDXVA2:
		return "dxva2"
	case HardwareDeviceTypeQSV:
		return "qsv"
	case HardwareDeviceTypeVideoToolbox:
		return "videotoolbox"
	case HardwareDeviceTypeD3D11VA:
		return "d3d11va"
	case HardwareDeviceTypeDRM:
		return "drm"
	case HardwareDeviceTypeOpenCL:
		return "opencl"
	case HardwareDeviceTypeMediaCodec:
		return "mediacodec"
	case HardwareDeviceTypeVulkan:
		return "vulkan"
	}
	return fmt.Sprintf("unknown_%X", int64(t))
}

func (t HardwareDeviceType) Astiav() astiav.HardwareDeviceType {
	return astiav.HardwareDeviceType(t)
}

func HardwareDeviceTypeFromString(s string) (HardwareDeviceType, error) {
	s = strings.Trim(strings.ToLower(s), " \"\n\r\t")
	if s == "" {
		return HardwareDeviceTypeNone, nil
	}
	for t := HardwareDeviceTypeNone; t < endOfHardwareDeviceType; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return HardwareDeviceTypeNone, fmt.Errorf("unknown hardware device type: '%s'", s)
}

// Set implements pflag.Value.
func (t *HardwareDeviceType) Set(s string) error {
	v, err := HardwareDeviceTypeFromString(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Type implements pflag.Value.
func (t *HardwareDeviceType) Type() string {
	return "hwdevice"
}

func (t *HardwareDeviceType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("unable to decode the hardware device type: %w", err)
	}
	return t.Set(s)
}

func (t HardwareDeviceType) MarshalYAML() (any, error) {
	return t.String(), nil
}
