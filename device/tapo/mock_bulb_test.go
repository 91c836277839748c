package tapo

import (
	"encoding/json"
	"errors"
	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"os"
	"sync"
	"testing"
)

// mockBulb answers inner API calls for either mock server, holding its
// state in the same shape get_device_info returns it.
type mockBulb struct {
	mu       sync.Mutex
	state    map[string]any
	failures map[string]int // method -> error_code to answer with
	calls    []string
}

func newMockBulb(t *testing.T) *mockBulb {
	fixture, err := os.ReadFile("testdata/l530.yaml")
	require.NoError(t, err)
	state := map[string]any{}
	require.NoError(t, yaml.Unmarshal(fixture, &state))
	return &mockBulb{state: state, failures: map[string]int{}}
}

func (b *mockBulb) failWith(method string, code int) *mockBulb {
	b.failures[method] = code
	return b
}

func (b *mockBulb) methodsCalled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *mockBulb) handle(t *testing.T, method string, params any) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.Logf("Method: %s, Params: %v", method, params)
	b.calls = append(b.calls, method)
	if code, failing := b.failures[method]; failing {
		return json.Marshal(struct {
			ErrorCode int `json:"error_code"`
		}{ErrorCode: code})
	}
	switch method {
	case "get_device_info":
		return json.Marshal(struct {
			ErrorCode int `json:"error_code"`
			Result    any `json:"result"`
		}{ErrorCode: 0, Result: b.state})
	case "set_device_info":
		var changes map[string]any
		if err := mapstructure.Decode(params, &changes); err != nil {
			return nil, err
		}
		for key, value := range changes {
			b.state[key] = value
		}
		return json.Marshal(struct {
			ErrorCode int `json:"error_code"`
		}{ErrorCode: 0})
	default:
		return nil, errors.New("method not known: " + method)
	}
}
