package cli

import (
	"context"
	"fmt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"io"
	"tapoctl/config"
	"tapoctl/device/tapo"
)

const (
	outputError          = "Error"
	outputNotImplemented = "Action not implemented"
)

// Bulb is the part of the device client the dispatcher drives.
type Bulb interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
	SetBrightness(ctx context.Context, brightness uint8) error
	SetColorTemperature(ctx context.Context, kelvin uint16) error
	GetDeviceInfo(ctx context.Context) (*tapo.DeviceInfo, error)
	Close() error
}

// Connector authenticates and binds to the device named by the invocation.
type Connector func(ctx context.Context, invocation config.Invocation) (Bulb, error)

type Dispatcher struct {
	connect Connector
	out     io.Writer
	logger  log.Logger
}

func NewDispatcher(connect Connector, out io.Writer, logger log.Logger) *Dispatcher {
	return &Dispatcher{connect: connect, out: out, logger: logger}
}

// Dispatch performs exactly one action and writes exactly one line. A
// returned error is fatal; failures of on/off/toggle are reported as "Error".
func (d *Dispatcher) Dispatch(ctx context.Context, inv config.Invocation) error {
	if !inv.Action.Known() {
		return writeLine(d.out, outputNotImplemented)
	}

	bulb, err := d.connect(ctx, inv)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", inv.DeviceIp, err)
	}
	defer func() { _ = bulb.Close() }()
	logger := log.With(d.logger, "action", string(inv.Action), "ip", inv.DeviceIp)

	switch inv.Action {
	case config.ActionBrightness:
		if inv.ShouldSetBrightness() {
			if err := bulb.SetBrightness(ctx, uint8(inv.Value)); err != nil {
				return fmt.Errorf("could not set brightness to %d: %w", inv.Value, err)
			}
		}
		return d.printState(ctx, bulb)
	case config.ActionTemperature:
		if inv.ShouldSetTemperature() {
			if err := bulb.SetColorTemperature(ctx, uint16(inv.Value)); err != nil {
				return fmt.Errorf("could not set colour temperature to %d: %w", inv.Value, err)
			}
		}
		return d.printState(ctx, bulb)
	case config.ActionOn:
		return d.switchTo(ctx, logger, bulb, true)
	case config.ActionOff:
		return d.switchTo(ctx, logger, bulb, false)
	case config.ActionToggle:
		info, err := bulb.GetDeviceInfo(ctx)
		if err != nil {
			return fmt.Errorf("could not read current state before toggling: %w", err)
		}
		return d.switchTo(ctx, logger, bulb, !info.DeviceOn)
	default:
		return d.printState(ctx, bulb)
	}
}

func (d *Dispatcher) switchTo(ctx context.Context, logger log.Logger, bulb Bulb, on bool) error {
	var err error
	if on {
		err = bulb.On(ctx)
	} else {
		err = bulb.Off(ctx)
	}
	if err != nil {
		_ = level.Warn(logger).Log("msg", "could not switch device", "on", on, "err", err)
		return writeLine(d.out, outputError)
	}
	return d.printState(ctx, bulb)
}

func (d *Dispatcher) printState(ctx context.Context, bulb Bulb) error {
	info, err := bulb.GetDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch device state: %w", err)
	}
	return writeState(d.out, info.State())
}
