package config

import (
	"fmt"
	"strconv"
	"strings"
	"tapoctl/device/tapo"
	"time"
)

const (
	EnvLogLevel        = "TAPOCTL_LOG_LEVEL"
	EnvPort            = "TAPOCTL_PORT"
	EnvTimeout         = "TAPOCTL_TIMEOUT"
	EnvMetricsTextfile = "TAPOCTL_METRICS_TEXTFILE"
)

type Environment struct {
	LogLevel        string
	Port            uint16
	Timeout         time.Duration
	MetricsTextfile string // empty disables the snapshot
}

func DefaultEnvironment() Environment {
	return Environment{
		LogLevel: "warn",
		Port:     tapo.DefaultPort,
		Timeout:  tapo.DefaultTimeout,
	}
}

// ReadEnvironment overlays any TAPOCTL_* variables found through lookup
// (normally os.LookupEnv) onto the defaults.
func ReadEnvironment(lookup func(string) (string, bool)) (Environment, error) {
	env := DefaultEnvironment()
	if value, present := lookup(EnvLogLevel); present && value != "" {
		switch level := strings.ToLower(value); level {
		case "debug", "info", "warn", "error":
			env.LogLevel = level
		default:
			return env, fmt.Errorf("%s must be one of debug, info, warn or error, not '%s'", EnvLogLevel, value)
		}
	}
	if value, present := lookup(EnvPort); present && value != "" {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil || port == 0 {
			return env, fmt.Errorf("%s must be a port number, not '%s'", EnvPort, value)
		}
		env.Port = uint16(port)
	}
	if value, present := lookup(EnvTimeout); present && value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return env, fmt.Errorf("could not parse %s: %w", EnvTimeout, err)
		}
		if timeout <= 0 {
			return env, fmt.Errorf("%s must be positive, not '%s'", EnvTimeout, value)
		}
		env.Timeout = timeout
	}
	if value, present := lookup(EnvMetricsTextfile); present {
		env.MetricsTextfile = value
	}
	return env, nil
}
