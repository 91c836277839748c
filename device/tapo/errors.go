package tapo

import (
	"errors"
	"strconv"
)

var (
	ErrAuthentication     = errors.New("device rejected the supplied credentials")
	ErrOutOfRange         = errors.New("value out of range")
	ErrUnexpectedResponse = errors.New("unexpected response from device")
)

const (
	errorCodeIncorrectRequest     = 1002
	errorCodeUnsupportedProtocol  = 1003
	errorCodeJsonFormat           = -1003
	errorCodeInvalidPublicKey     = -1010
	errorCodeInvalidTerminalUuid  = -1012
	errorCodeInvalidCredentials   = -1501
	errorCodeSessionTimeout       = 9999
	errorCodeLoginFailed          = 1111
	errorCodeHandshakeFailed      = 1100
	errorCodeUnknownMethod        = -1008
	errorCodeRequestLength        = -1006
	errorCodeAesDecodeFailed      = -1005
	errorCodeTransportUnavailable = 1112
)

var errorCodeNames = map[int]string{
	errorCodeIncorrectRequest:     "incorrect request",
	errorCodeUnsupportedProtocol:  "unsupported protocol",
	errorCodeJsonFormat:           "json format error",
	errorCodeInvalidPublicKey:     "invalid public key length",
	errorCodeInvalidTerminalUuid:  "invalid terminal uuid",
	errorCodeInvalidCredentials:   "invalid request or credentials",
	errorCodeSessionTimeout:       "session timeout",
	errorCodeLoginFailed:          "login failed",
	errorCodeHandshakeFailed:      "handshake failed",
	errorCodeUnknownMethod:        "unknown method",
	errorCodeRequestLength:        "request length error",
	errorCodeAesDecodeFailed:      "aes decode failed",
	errorCodeTransportUnavailable: "http transport failed",
}

// DeviceError is a non-zero error_code returned by the device.
type DeviceError struct {
	Code int
}

func (e *DeviceError) Error() string {
	if name, known := errorCodeNames[e.Code]; known {
		return "device returned error code " + strconv.Itoa(e.Code) + " (" + name + ")"
	}
	return "device returned error code " + strconv.Itoa(e.Code)
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrAuthentication &&
		(e.Code == errorCodeInvalidCredentials || e.Code == errorCodeLoginFailed)
}
