package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Action string

const (
	ActionBrightness  Action = "brightness"
	ActionTemperature Action = "temperature"
	ActionOn          Action = "on"
	ActionOff         Action = "off"
	ActionToggle      Action = "toggle"
	ActionState       Action = "state"
)

const (
	MinBrightness  = 0
	MaxBrightness  = 100
	MinTemperature = 2500
	MaxTemperature = 6500
)

const RequiredArgs = 4

var ErrMissingArguments = errors.New("missing required arguments")

func (a Action) Known() bool {
	switch a {
	case ActionBrightness, ActionTemperature, ActionOn, ActionOff, ActionToggle, ActionState:
		return true
	default:
		return false
	}
}

// Invocation is the parsed command line. Value is 0 whenever the optional
// argument was absent, unparsable or out of range for the action, and 0
// means "leave the property alone".
type Invocation struct {
	Username string
	Password string
	DeviceIp string
	Action   Action
	Value    int
}

// ParseInvocation reads <username> <password> <device_ip> <action> [<value>].
// Anything after the value is ignored.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) < RequiredArgs {
		return Invocation{}, fmt.Errorf("expected at least %d arguments but got %d: %w", RequiredArgs, len(args), ErrMissingArguments)
	}
	invocation := Invocation{
		Username: args[0],
		Password: args[1],
		DeviceIp: args[2],
		Action:   Action(args[3]),
	}
	var raw string
	if len(args) > RequiredArgs {
		raw = args[RequiredArgs]
	}
	switch invocation.Action {
	case ActionBrightness:
		invocation.Value = parseInRange(raw, 8, MinBrightness, MaxBrightness)
	case ActionTemperature:
		invocation.Value = parseInRange(raw, 16, MinTemperature, MaxTemperature)
	}
	return invocation, nil
}

// parseInRange accepts an optional leading '+'.
func parseInRange(raw string, bitSize int, lower, upper int) int {
	parsed, err := strconv.ParseUint(strings.TrimPrefix(raw, "+"), 10, bitSize)
	if err != nil {
		return 0
	}
	if int(parsed) < lower || int(parsed) > upper {
		return 0
	}
	return int(parsed)
}

// ShouldSetBrightness reports whether Value names a brightness to apply.
func (inv Invocation) ShouldSetBrightness() bool {
	return inv.Action == ActionBrightness && inv.Value > MinBrightness
}

// ShouldSetTemperature reports whether Value names a colour temperature to
// apply. The lower bound itself is treated like "no change".
func (inv Invocation) ShouldSetTemperature() bool {
	return inv.Action == ActionTemperature && inv.Value > MinTemperature
}
