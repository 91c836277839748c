package tapo

import (
	"encoding/json"
	"fmt"
	"github.com/mitchellh/mapstructure"
	"time"
)

type requestBody struct {
	Method          string `json:"method"`
	Params          any    `json:"params,omitempty"`
	RequestTimeMils int64  `json:"requestTimeMils"`
	TerminalUuid    string `json:"terminalUUID,omitempty"`
}

type responseBody struct {
	ErrorCode int            `json:"error_code"`
	Result    map[string]any `json:"result"`
}

func marshalRequest(method string, params any, terminalUuid string) ([]byte, error) {
	body, err := json.Marshal(requestBody{
		Method:          method,
		Params:          params,
		RequestTimeMils: time.Now().UnixMilli(),
		TerminalUuid:    terminalUuid,
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal %s request: %w", method, err)
	}
	return body, nil
}

// unmarshalResponse returns the result object, which is nil for calls that
// only acknowledge with an error code.
func unmarshalResponse(body []byte) (map[string]any, error) {
	var response responseBody
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("could not unmarshal response as JSON: %w", err)
	}
	if response.ErrorCode != 0 {
		return nil, &DeviceError{Code: response.ErrorCode}
	}
	return response.Result, nil
}

func decodeResult(result map[string]any, into any) error {
	if result == nil {
		return fmt.Errorf("response carried no result: %w", ErrUnexpectedResponse)
	}
	if err := mapstructure.Decode(result, into); err != nil {
		return fmt.Errorf("could not decode result (%v): %w", err, ErrUnexpectedResponse)
	}
	return nil
}
