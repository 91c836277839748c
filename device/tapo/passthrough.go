package tapo

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"net/url"
)

// passthroughSession speaks the older protocol: an RSA handshake hands over an
// AES key, then every call is wrapped in an encrypted securePassthrough request.
type passthroughSession struct {
	transport   *transport
	hashedEmail string // Hashed email of the account that originally set up the device
	password    string // Isn't it weird how the email is hashed and the password isn't
	logger      log.Logger

	cbcIv     []byte       // The shared CBC init vector between this app and the device, nil until after key-exchange
	cbcCipher cipher.Block // The shared cipher info between this app and the device, nil until after key-exchange
	token     string       // Empty until logged in
}

func newPassthroughSession(transport *transport, email, password string, logger log.Logger) *passthroughSession {
	return &passthroughSession{
		transport:   transport,
		hashedEmail: hashUsername(email),
		password:    password,
		logger:      logger,
	}
}

func (s *passthroughSession) name() string {
	return "passthrough"
}

func (s *passthroughSession) devicePostUrl() string {
	if s.token == "" {
		return s.transport.addresses.appUrl.String()
	}
	return s.transport.addresses.appUrl.String() + "?token=" + url.QueryEscape(s.token)
}

func (s *passthroughSession) newEncrypter() cipher.BlockMode {
	return cipher.NewCBCEncrypter(s.cbcCipher, s.cbcIv)
}

func (s *passthroughSession) newDecrypter() cipher.BlockMode {
	return cipher.NewCBCDecrypter(s.cbcCipher, s.cbcIv)
}

// exchange posts an unencrypted envelope and returns its result object.
func (s *passthroughSession) exchange(ctx context.Context, body []byte) (map[string]any, error) {
	responseBody, err := s.transport.post(ctx, s.devicePostUrl(), body)
	if err != nil {
		return nil, err
	}
	return unmarshalResponse(responseBody)
}

func (s *passthroughSession) doKeyExchange(ctx context.Context) error {
	s.token = ""
	privateKey, err := newRsaKeypair()
	if err != nil {
		return fmt.Errorf("could not generate new RSA keypair: %w", err)
	}
	publicKeyPem, err := textualPublicKey(privateKey)
	if err != nil {
		return fmt.Errorf("could not extract textual public key from private key: %w", err)
	}

	handshakeBody, err := json.Marshal(requestBody{
		Method: "handshake",
		Params: struct {
			Key string `json:"key"`
		}{Key: publicKeyPem},
	})
	if err != nil {
		return fmt.Errorf("could not marshal key exchange request body: %w", err)
	}
	result, err := s.exchange(ctx, handshakeBody)
	if err != nil {
		return fmt.Errorf("could not perform key exchange POST request: %w", err)
	}

	var handshakeResult struct {
		Key string `mapstructure:"key"`
	}
	if err := decodeResult(result, &handshakeResult); err != nil {
		return fmt.Errorf("could not read key exchange response: %w", err)
	}
	block, iv, err := cbcCipherAndIvFromHandshakeResponse(handshakeResult.Key, privateKey)
	if err != nil {
		return fmt.Errorf("could not determine CBC parameters from key exchange response: %w", err)
	}
	s.cbcIv = iv
	s.cbcCipher = block
	return nil
}

func (s *passthroughSession) hasExchangedKeys() bool {
	return s.transport.hasValidSessionCookie() && s.cbcCipher != nil && s.cbcIv != nil
}

func (s *passthroughSession) isLoggedIn() bool {
	return s.hasExchangedKeys() && s.token != ""
}

func (s *passthroughSession) handshake(ctx context.Context) error {
	if err := s.doKeyExchange(ctx); err != nil {
		return fmt.Errorf("could not do key exchange before logging in: %w", err)
	}

	loginBody, err := json.Marshal(requestBody{
		Method: "login_device",
		Params: struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}{
			Username: base64.StdEncoding.EncodeToString([]byte(s.hashedEmail)),
			Password: base64.StdEncoding.EncodeToString([]byte(s.password)),
		},
	})
	if err != nil {
		return fmt.Errorf("could not marshal login_device payload: %w", err)
	}
	response, err := s.passthrough(ctx, loginBody)
	if err != nil {
		return fmt.Errorf("could not perform login request: %w", err)
	}
	result, err := unmarshalResponse(response)
	if err != nil {
		return fmt.Errorf("device refused login_device: %w", err)
	}
	var loginResult struct {
		Token string `mapstructure:"token"`
	}
	if err := decodeResult(result, &loginResult); err != nil {
		return fmt.Errorf("could not read login_device response: %w", err)
	}
	if loginResult.Token == "" {
		return fmt.Errorf("login_device returned an empty token: %w", ErrUnexpectedResponse)
	}
	s.token = loginResult.Token
	_ = level.Debug(s.logger).Log("msg", "passthrough login complete", "ip", s.transport.addresses.ip)
	return nil
}

// passthrough encrypts payload, sends it and returns the decrypted inner response.
func (s *passthroughSession) passthrough(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := json.Marshal(requestBody{
		Method: "securePassthrough",
		Params: struct {
			Request string `json:"request"`
		}{
			Request: encryptWithPkcs7Padding(s.newEncrypter(), payload),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal passthrough payload: %w", err)
	}
	result, err := s.exchange(ctx, body)
	if err != nil {
		return nil, err
	}
	var passthroughResult struct {
		Response string `mapstructure:"response"`
	}
	if err := decodeResult(result, &passthroughResult); err != nil {
		return nil, fmt.Errorf("could not read passthrough response: %w", err)
	}
	clearText, err := decryptAndRemovePadding(s.newDecrypter(), passthroughResult.Response)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt passthrough response: %w", err)
	}
	return clearText, nil
}

func (s *passthroughSession) execute(ctx context.Context, payload []byte) ([]byte, error) {
	if !s.isLoggedIn() {
		_ = level.Info(s.logger).Log("msg", "not logged in, will log in before making api request", "ip", s.transport.addresses.ip)
		if err := s.handshake(ctx); err != nil {
			s.forgetKeysAndSession()
			return nil, fmt.Errorf("could not log in before making API call: %w", err)
		}
	}
	return s.passthrough(ctx, payload)
}

func (s *passthroughSession) forgetKeysAndSession() {
	s.token = ""
	s.transport.forgetSession()
	s.cbcCipher = nil
	s.cbcIv = nil
}
