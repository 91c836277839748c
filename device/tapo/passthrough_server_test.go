package tapo

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"github.com/mergermarket/go-pkcs7"
	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const passthroughToken = "abc123"

type passthroughServer struct {
	t        *testing.T
	username string
	password string
	handler  func(t *testing.T, method string, params any) ([]byte, error)
}

func createPassthroughServer(t *testing.T, server *passthroughServer) (*httptest.Server, uint16) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app", server.handleRequest)
	testServer := httptest.NewServer(mux)
	port, err := strconv.Atoi(strings.Split(testServer.URL, ":")[2])
	require.NoError(t, err)
	return testServer, uint16(port)
}

func (s *passthroughServer) handleRequest(writer http.ResponseWriter, request *http.Request) {
	innerKeyRand, aesCipher, iv := s.getKeyDataFromCookie(writer, request)

	bodyBytes, err := io.ReadAll(request.Body)
	require.NoError(s.t, err)
	var bodyMap struct {
		Method string `json:"method"`
		Params any    `json:"params"`
	}
	require.NoError(s.t, json.Unmarshal(bodyBytes, &bodyMap))
	s.t.Logf("Mock Server Received: %+v", bodyMap)

	switch bodyMap.Method {
	case "handshake":
		s.doHandshake(writer, bodyMap.Params, innerKeyRand)
	case "securePassthrough":
		var params struct {
			Request string `mapstructure:"request"`
		}
		require.NoError(s.t, mapstructure.Decode(bodyMap.Params, &params))
		clearText, err := s.decrypt(params.Request, aesCipher, iv)
		require.NoError(s.t, err)
		var innerBody struct {
			Method string `json:"method"`
			Params any    `json:"params"`
		}
		require.NoError(s.t, json.Unmarshal(clearText, &innerBody))
		s.t.Logf("Clear Text: %s", string(clearText))

		var response []byte
		if innerBody.Method == "login_device" {
			response = s.handleLoginRequest(innerBody.Params)
		} else if request.URL.Query().Get("token") != passthroughToken {
			response = s.failureForCode(9999)
		} else {
			require.NotNil(s.t, s.handler, "unexpected inner method: %s", innerBody.Method)
			response, err = s.handler(s.t, innerBody.Method, innerBody.Params)
			require.NoError(s.t, err)
		}

		responseBytes, err := json.Marshal(struct {
			Result    any `json:"result"`
			ErrorCode int `json:"error_code"`
		}{
			ErrorCode: 0,
			Result: struct {
				Response string `json:"response"`
			}{
				Response: base64.StdEncoding.EncodeToString(s.encrypt(response, aesCipher, iv)),
			},
		})
		require.NoError(s.t, err)
		writer.WriteHeader(http.StatusOK)
		_, err = writer.Write(responseBytes)
		require.NoError(s.t, err)
	default:
		s.t.Errorf("Unexpected method: %s", bodyMap.Method)
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write(s.failureForCode(-1003))
	}
}

func (s *passthroughServer) getKeyDataFromCookie(writer http.ResponseWriter, request *http.Request) ([]byte, cipher.Block, []byte) {
	// The real server doesn't do this (directly), but it's convenient for keeping the mock server stateless
	sessionCookie, err := request.Cookie(sessionCookieName)
	var innerKeyRand []byte
	if errors.Is(err, http.ErrNoCookie) {
		innerKeyRand = s.generateNewKey()
		http.SetCookie(writer, &http.Cookie{
			Name:    sessionCookieName,
			Value:   base64.StdEncoding.EncodeToString(innerKeyRand),
			Path:    "/",
			Expires: time.Now().Add(time.Hour),
		})
	} else {
		innerKeyRand, err = base64.StdEncoding.DecodeString(sessionCookie.Value)
		require.NoError(s.t, err)
		require.Len(s.t, innerKeyRand, 32)
	}
	aesCipher, err := aes.NewCipher(innerKeyRand[0:16])
	require.NoError(s.t, err)
	iv := innerKeyRand[16:32]
	return innerKeyRand, aesCipher, iv
}

func (s *passthroughServer) doHandshake(writer http.ResponseWriter, handshakeParams any, innerKeyRand []byte) {
	var params struct {
		Key string `mapstructure:"key"`
	}
	require.NoError(s.t, mapstructure.Decode(handshakeParams, &params))

	clientKey := readClientPublicKey(s.t, params.Key)
	cipherText, err := rsa.EncryptPKCS1v15(rand.Reader, clientKey, innerKeyRand)
	require.NoError(s.t, err)
	responseBytes, err := json.Marshal(struct {
		ErrorCode int `json:"error_code"`
		Result    any `json:"result"`
	}{
		ErrorCode: 0,
		Result: struct {
			Key string `json:"key"`
		}{
			Key: base64.StdEncoding.EncodeToString(cipherText),
		},
	})
	require.NoError(s.t, err)
	writer.WriteHeader(http.StatusOK)
	_, err = writer.Write(responseBytes)
	require.NoError(s.t, err)
}

func readClientPublicKey(t *testing.T, key string) *rsa.PublicKey {
	block, _ := pem.Decode([]byte(key))
	require.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)
	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	return publicKey.(*rsa.PublicKey)
}

func (s *passthroughServer) generateNewKey() []byte {
	innerKeyRand := make([]byte, 32)
	bytesGenerated, err := rand.Read(innerKeyRand)
	require.NoError(s.t, err)
	require.Equal(s.t, 32, bytesGenerated)
	return innerKeyRand
}

func (s *passthroughServer) decrypt(base64CipherText string, aesCipher cipher.Block, iv []byte) ([]byte, error) {
	cipherText, err := base64.StdEncoding.DecodeString(base64CipherText)
	require.NoError(s.t, err)
	clearText := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(aesCipher, iv).CryptBlocks(clearText, cipherText)
	return pkcs7.Unpad(clearText, len(iv))
}

func (s *passthroughServer) encrypt(clearText []byte, aesCipher cipher.Block, iv []byte) []byte {
	padded, err := pkcs7.Pad(clearText, len(iv))
	require.NoError(s.t, err)
	cipherText := make([]byte, len(padded))
	cipher.NewCBCEncrypter(aesCipher, iv).CryptBlocks(cipherText, padded)
	return cipherText
}

func (s *passthroughServer) failureForCode(code int) []byte {
	response, err := json.Marshal(struct {
		ErrorCode int `json:"error_code"`
	}{ErrorCode: code})
	require.NoError(s.t, err)
	return response
}

func (s *passthroughServer) handleLoginRequest(loginParams any) []byte {
	var params struct {
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	}
	require.NoError(s.t, mapstructure.Decode(loginParams, &params))

	hashedUsername, err := base64.StdEncoding.DecodeString(params.Username)
	require.NoError(s.t, err)
	clearPassword, err := base64.StdEncoding.DecodeString(params.Password)
	require.NoError(s.t, err)
	if hashUsername(s.username) != string(hashedUsername) || s.password != string(clearPassword) {
		return s.failureForCode(errorCodeInvalidCredentials)
	}

	response, err := json.Marshal(struct {
		Result    any `json:"result"`
		ErrorCode int `json:"error_code"`
	}{
		ErrorCode: 0,
		Result: struct {
			Token string `json:"token"`
		}{
			Token: passthroughToken,
		},
	})
	require.NoError(s.t, err)
	return response
}
