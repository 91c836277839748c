package tapo

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type klapServer struct {
	t *testing.T

	username string
	password string
	authHash []byte

	mu       sync.Mutex
	sessions map[string]*klapServerSession
	handler  func(t *testing.T, method string, params any) ([]byte, error)
}

type klapServerSession struct {
	localSeed  []byte
	remoteSeed []byte
	encryption *encryptionContext // nil until handshake 2 succeeds
}

func createKlapServer(t *testing.T, server *klapServer) (*httptest.Server, uint16) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app", server.respondWith1003)
	mux.HandleFunc("POST /app/handshake1", server.handshake1)
	mux.HandleFunc("POST /app/handshake2", server.handshake2)
	mux.HandleFunc("POST /app/request", server.handleRequest)
	testServer := httptest.NewServer(mux)
	port, err := strconv.Atoi(strings.Split(testServer.URL, ":")[2])
	require.NoError(t, err)

	server.authHash = klapAuthHash(server.username, server.password)
	server.sessions = map[string]*klapServerSession{}
	return testServer, uint16(port)
}

func (s *klapServer) respondWith1003(writer http.ResponseWriter, _ *http.Request) {
	s.failWithCode(1003, writer)
}

func (s *klapServer) handshake1(writer http.ResponseWriter, request *http.Request) {
	clientSeed, err := io.ReadAll(request.Body)
	require.NoError(s.t, err)
	require.Len(s.t, clientSeed, 16)
	serverSeed := s.generateRandomBytes(16)
	sessionId := hex.EncodeToString(s.generateRandomBytes(16))

	s.mu.Lock()
	s.sessions[sessionId] = &klapServerSession{localSeed: clientSeed, remoteSeed: serverSeed}
	s.mu.Unlock()

	hash := sha256.Sum256(concat(clientSeed, serverSeed, s.authHash))
	// Real devices send no Path, so the cookie is scoped to /app
	writer.Header().Add("Set-Cookie", sessionCookieName+"="+sessionId+";TIMEOUT=86400")
	writer.WriteHeader(http.StatusOK)
	written, err := writer.Write(concat(serverSeed, hash[:]))
	require.NoError(s.t, err)
	require.Equal(s.t, 48, written)
}

func (s *klapServer) handshake2(writer http.ResponseWriter, request *http.Request) {
	session := s.sessionFor(request)
	if session == nil {
		writer.WriteHeader(http.StatusForbidden)
		return
	}
	payload, err := io.ReadAll(request.Body)
	require.NoError(s.t, err)
	expected := sha256.Sum256(concat(session.remoteSeed, session.localSeed, s.authHash))
	if !bytes.Equal(expected[:], payload) {
		writer.WriteHeader(http.StatusForbidden)
		return
	}
	encryption, err := setupEncryption(concat(session.localSeed, session.remoteSeed, s.authHash))
	require.NoError(s.t, err)
	s.mu.Lock()
	session.encryption = encryption
	s.mu.Unlock()
	writer.WriteHeader(http.StatusOK)
}

func (s *klapServer) handleRequest(writer http.ResponseWriter, request *http.Request) {
	session := s.sessionFor(request)
	if session == nil || session.encryption == nil {
		writer.WriteHeader(http.StatusForbidden)
		return
	}
	seq, err := strconv.Atoi(request.URL.Query().Get("seq"))
	require.NoError(s.t, err)
	body, err := io.ReadAll(request.Body)
	require.NoError(s.t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	session.encryption.sequenceNumber = int32(seq)
	clearText, err := session.encryption.decrypt(body)
	require.NoError(s.t, err)
	var innerBody struct {
		Method       string `json:"method"`
		Params       any    `json:"params"`
		TerminalUuid string `json:"terminalUUID"`
	}
	require.NoError(s.t, json.Unmarshal(clearText, &innerBody))
	assert.NotEmpty(s.t, innerBody.TerminalUuid)
	s.t.Logf("Clear Text: %s", string(clearText))

	require.NotNil(s.t, s.handler, "unexpected inner method: %s", innerBody.Method)
	response, err := s.handler(s.t, innerBody.Method, innerBody.Params)
	require.NoError(s.t, err)

	// encrypt advances the counter, so rewind one to answer under seq
	session.encryption.sequenceNumber = int32(seq) - 1
	writer.WriteHeader(http.StatusOK)
	_, err = writer.Write(session.encryption.encrypt(response))
	require.NoError(s.t, err)
}

func (s *klapServer) sessionFor(request *http.Request) *klapServerSession {
	cookie, err := request.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[cookie.Value]
}

func (s *klapServer) failWithCode(code int, writer http.ResponseWriter) {
	responseBytes, err := json.Marshal(struct {
		ErrorCode int `json:"error_code"`
	}{ErrorCode: code})
	require.NoError(s.t, err)
	writer.WriteHeader(http.StatusOK)
	_, err = writer.Write(responseBytes)
	require.NoError(s.t, err)
}

func (s *klapServer) generateRandomBytes(length int) []byte {
	generated := make([]byte, length)
	bytesGenerated, err := rand.Read(generated)
	require.NoError(s.t, err)
	require.Equal(s.t, length, bytesGenerated)
	return generated
}
