package tapo

import (
	"context"
	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"tapoctl/types"
	"time"
)

const (
	DefaultPort    uint16 = 80
	DefaultTimeout        = 10 * time.Second
)

// Client holds the account credentials used to open sessions with devices.
type Client struct {
	username     string
	password     string
	port         uint16
	timeout      time.Duration
	logger       log.Logger
	registry     prometheus.Registerer
	terminalUuid string
}

type Option func(*Client)

func WithPort(port uint16) Option {
	return func(c *Client) { c.port = port }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRegistry registers bulb gauges for every device bound by this client.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) { c.registry = registry }
}

func NewClient(username, password string, opts ...Option) *Client {
	c := &Client{
		username:     username,
		password:     password,
		port:         DefaultPort,
		timeout:      DefaultTimeout,
		logger:       log.NewNopLogger(),
		terminalUuid: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// L530 binds to the colour bulb at ip and negotiates a session with it.
func (c *Client) L530(ctx context.Context, ip string) (*ColorLight, error) {
	deviceConfig := &types.DeviceConfig{Ip: ip, Port: c.port}
	transport, err := newTransport(ip, c.port, c.timeout)
	if err != nil {
		return nil, err
	}
	session, err := negotiateSession(ctx, transport, c.username, c.password, c.logger)
	if err != nil {
		return nil, err
	}
	light := &ColorLight{
		deviceConfig: deviceConfig,
		transport:    transport,
		session:      session,
		terminalUuid: c.terminalUuid,
		logger:       log.With(c.logger, "ip", ip, "protocol", session.name()),
	}
	if c.registry != nil {
		light.metrics = registerMetrics(c.registry, types.GenerateCommonLabels(deviceConfig))
	}
	return light, nil
}
