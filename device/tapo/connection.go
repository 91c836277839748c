package tapo

import (
	"context"
	"fmt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type deviceSession interface {
	name() string
	handshake(ctx context.Context) error
	execute(ctx context.Context, payload []byte) ([]byte, error)
	forgetKeysAndSession()
}

// negotiateSession tries KLAP first and falls back to securePassthrough.
func negotiateSession(ctx context.Context, transport *transport, username, password string, logger log.Logger) (deviceSession, error) {
	klap := newKlapSession(transport, username, password, logger)
	klapErr := klap.handshake(ctx)
	if klapErr == nil {
		return klap, nil
	}
	klap.forgetKeysAndSession()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("could not negotiate a session with %s: %w", transport.addresses.ip, klapErr)
	}
	_ = level.Info(logger).Log("msg", "KLAP handshake failed, falling back to securePassthrough",
		"ip", transport.addresses.ip, "err", klapErr)

	passthrough := newPassthroughSession(transport, username, password, logger)
	if err := passthrough.handshake(ctx); err != nil {
		passthrough.forgetKeysAndSession()
		return nil, fmt.Errorf("could not negotiate a session with %s: klap: %w; passthrough: %w", transport.addresses.ip, klapErr, err)
	}
	return passthrough, nil
}
