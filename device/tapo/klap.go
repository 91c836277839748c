package tapo

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"strconv"
)

type klapSession struct {
	transport *transport
	username  string
	password  string
	logger    log.Logger

	localSeed  []byte
	remoteSeed []byte
	authHash   []byte
	encryption *encryptionContext
}

func newKlapSession(transport *transport, username, password string, logger log.Logger) *klapSession {
	return &klapSession{
		transport: transport,
		username:  username,
		password:  password,
		logger:    logger,
	}
}

func klapAuthHash(username, password string) []byte {
	userHash := sha1.Sum([]byte(username))
	passHash := sha1.Sum([]byte(password))
	authHash := sha256.Sum256(append(userHash[:], passHash[:]...))
	return authHash[:]
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func (s *klapSession) name() string {
	return "klap"
}

func (s *klapSession) handshake(ctx context.Context) error {
	s.localSeed = make([]byte, 16)
	if _, err := rand.Read(s.localSeed); err != nil {
		return fmt.Errorf("could not generate local seed: %w", err)
	}

	handshakeResponse, err := s.transport.post(ctx, s.transport.addresses.baseUrl+"/app/handshake1", s.localSeed)
	if err != nil {
		return fmt.Errorf("could not perform handshake 1 POST request: %w", err)
	}
	if len(handshakeResponse) != 48 {
		return fmt.Errorf("expected handshake 1 response to be 48 bytes but got %d: %w", len(handshakeResponse), ErrUnexpectedResponse)
	}
	s.remoteSeed = handshakeResponse[0:16]
	s.authHash = klapAuthHash(s.username, s.password)
	localRemoteAuthBuffer := concat(s.localSeed, s.remoteSeed, s.authHash)
	expectedHash := sha256.Sum256(localRemoteAuthBuffer)
	if !bytes.Equal(expectedHash[:], handshakeResponse[16:]) {
		return fmt.Errorf("handshake 1 response hash did not match expected credentials: %w", ErrAuthentication)
	}

	payload := sha256.Sum256(concat(s.remoteSeed, s.localSeed, s.authHash))
	if _, err = s.transport.post(ctx, s.transport.addresses.baseUrl+"/app/handshake2", payload[:]); err != nil {
		return fmt.Errorf("could not perform handshake 2 POST request: %w", err)
	}

	if s.encryption, err = setupEncryption(localRemoteAuthBuffer); err != nil {
		return err
	}
	_ = level.Debug(s.logger).Log("msg", "KLAP handshake complete", "ip", s.transport.addresses.ip)
	return nil
}

func (s *klapSession) hasExchangedKeys() bool {
	return s.transport.hasValidSessionCookie() && len(s.localSeed) > 0 && s.encryption != nil
}

func (s *klapSession) execute(ctx context.Context, payload []byte) ([]byte, error) {
	if !s.hasExchangedKeys() {
		_ = level.Info(s.logger).Log("msg", "no KLAP session, handshaking before request", "ip", s.transport.addresses.ip)
		if err := s.handshake(ctx); err != nil {
			s.forgetKeysAndSession()
			return nil, fmt.Errorf("could not handshake before making API call: %w", err)
		}
	}

	encryptedPayload := s.encryption.encrypt(payload)
	response, err := s.transport.post(ctx,
		s.transport.addresses.baseUrl+"/app/request?seq="+strconv.Itoa(int(s.encryption.sequenceNumber)),
		encryptedPayload)
	if err != nil {
		s.forgetKeysAndSession()
		return nil, err
	}
	return s.encryption.decrypt(response)
}

func (s *klapSession) forgetKeysAndSession() {
	s.transport.forgetSession()
	s.localSeed = nil
	s.remoteSeed = nil
	s.authHash = nil
	s.encryption = nil
}
