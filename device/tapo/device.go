package tapo

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"strings"
	"tapoctl/types"
)

const (
	MinBrightness       = 1
	MaxBrightness       = 100
	MinColorTemperature = 2500
	MaxColorTemperature = 6500
	MaxHue              = 360
	MaxSaturation       = 100
)

// ColorLight is a bound session with an L530-style colour bulb.
type ColorLight struct {
	deviceConfig *types.DeviceConfig
	transport    *transport
	session      deviceSession
	terminalUuid string
	logger       log.Logger
	metrics      *prometheusMetrics
}

// DeviceInfo is the decoded get_device_info result.
type DeviceInfo struct {
	DeviceId        string `mapstructure:"device_id"`
	DeviceType      string `mapstructure:"type"` // e.g. SMART.TAPOBULB
	Model           string `mapstructure:"model"`
	FirmwareVersion string `mapstructure:"fw_ver"`
	HardwareVersion string `mapstructure:"hw_ver"`
	HardwareId      string `mapstructure:"hw_id"`
	OemId           string `mapstructure:"oem_id"`
	Mac             string `mapstructure:"mac"`
	Nickname        string `mapstructure:"nickname"`
	Overheated      bool   `mapstructure:"overheated"`
	WifiRssi        int    `mapstructure:"rssi"`
	SignalLevel     int    `mapstructure:"signal_level"`

	DeviceOn          bool `mapstructure:"device_on"`
	Brightness        int  `mapstructure:"brightness"`
	ColourTemperature int  `mapstructure:"color_temp"`
	Hue               int  `mapstructure:"hue"`
	Saturation        int  `mapstructure:"saturation"`
}

func (info *DeviceInfo) State() types.DeviceState {
	return types.DeviceState{
		Enabled:    info.DeviceOn,
		Color:      info.ColourTemperature,
		Brightness: info.Brightness,
	}
}

type lightParams struct {
	DeviceOn   *bool   `json:"device_on,omitempty"`
	Brightness *uint8  `json:"brightness,omitempty"`
	ColorTemp  *uint16 `json:"color_temp,omitempty"`
	Hue        *uint16 `json:"hue,omitempty"`
	Saturation *uint8  `json:"saturation,omitempty"`
}

func ptr[E any](value E) *E {
	return &value
}

func (dev *ColorLight) call(ctx context.Context, method string, params any) (map[string]any, error) {
	payload, err := marshalRequest(method, params, dev.terminalUuid)
	if err != nil {
		return nil, err
	}
	response, err := dev.session.execute(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("could not perform %s on %s: %w", method, dev.deviceConfig.Ip, err)
	}
	result, err := unmarshalResponse(response)
	if err != nil {
		return nil, fmt.Errorf("%s failed on %s: %w", method, dev.deviceConfig.Ip, err)
	}
	_ = level.Debug(dev.logger).Log("msg", "api call complete", "method", method)
	return result, nil
}

func (dev *ColorLight) setDeviceInfo(ctx context.Context, params lightParams) error {
	_, err := dev.call(ctx, "set_device_info", params)
	return err
}

func (dev *ColorLight) On(ctx context.Context) error {
	return dev.setDeviceInfo(ctx, lightParams{DeviceOn: ptr(true)})
}

func (dev *ColorLight) Off(ctx context.Context) error {
	return dev.setDeviceInfo(ctx, lightParams{DeviceOn: ptr(false)})
}

func (dev *ColorLight) SetBrightness(ctx context.Context, brightness uint8) error {
	if brightness < MinBrightness || brightness > MaxBrightness {
		return fmt.Errorf("brightness %d is outside %d-%d: %w", brightness, MinBrightness, MaxBrightness, ErrOutOfRange)
	}
	return dev.setDeviceInfo(ctx, lightParams{Brightness: ptr(brightness)})
}

func (dev *ColorLight) SetColorTemperature(ctx context.Context, kelvin uint16) error {
	if kelvin < MinColorTemperature || kelvin > MaxColorTemperature {
		return fmt.Errorf("colour temperature %d is outside %d-%d: %w", kelvin, MinColorTemperature, MaxColorTemperature, ErrOutOfRange)
	}
	return dev.setDeviceInfo(ctx, lightParams{ColorTemp: ptr(kelvin)})
}

// SetHueSaturation switches the bulb to colour mode, which clears the colour temperature.
func (dev *ColorLight) SetHueSaturation(ctx context.Context, hue uint16, saturation uint8) error {
	if hue > MaxHue {
		return fmt.Errorf("hue %d is outside 0-%d: %w", hue, MaxHue, ErrOutOfRange)
	}
	if saturation > MaxSaturation {
		return fmt.Errorf("saturation %d is outside 0-%d: %w", saturation, MaxSaturation, ErrOutOfRange)
	}
	return dev.setDeviceInfo(ctx, lightParams{Hue: ptr(hue), Saturation: ptr(saturation), ColorTemp: ptr(uint16(0))})
}

func (dev *ColorLight) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	result, err := dev.call(ctx, "get_device_info", nil)
	if err != nil {
		return nil, err
	}
	var info DeviceInfo
	if err := decodeResult(result, &info); err != nil {
		return nil, fmt.Errorf("could not decode device info for %s: %w", dev.deviceConfig.Ip, err)
	}
	if alias, err := base64.StdEncoding.DecodeString(info.Nickname); err == nil {
		info.Nickname = strings.TrimSpace(string(alias))
	}
	info.Mac = strings.ReplaceAll(info.Mac, "-", "")
	if dev.metrics != nil {
		if err := dev.metrics.updateMetrics(&info); err != nil {
			_ = level.Warn(dev.logger).Log("msg", "could not update metrics", "err", err)
		}
	}
	return &info, nil
}

// Close drops the session keys and any idle connections.
func (dev *ColorLight) Close() error {
	dev.session.forgetKeysAndSession()
	return nil
}
