package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Session errors
	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionNotClosed ErrorCode = "SESSION_NOT_CLOSED"
	ErrCodeSpawnFailed      ErrorCode = "SPAWN_FAILED"

	// Tunnel errors
	ErrCodeTunnelDisabled     ErrorCode = "TUNNEL_DISABLED"
	ErrCodeHostNotFound       ErrorCode = "HOST_NOT_FOUND"
	ErrCodeNotConnected       ErrorCode = "NOT_CONNECTED"
	ErrCodeAuthDenied         ErrorCode = "AUTH_DENIED"
	ErrCodeRPCTimeout         ErrorCode = "RPC_TIMEOUT"
	ErrCodeConnectionClosed   ErrorCode = "CONNECTION_CLOSED"
	ErrCodePortRangeExhausted ErrorCode = "PORT_RANGE_EXHAUSTED"

	// Configuration errors
	ErrCodeConfigNotFound  ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   ErrorCode = "CONFIG_INVALID"
	ErrCodeLoadFileInvalid ErrorCode = "LOAD_FILE_INVALID"

	// IPC errors
	ErrCodeDialogUnsupported ErrorCode = "DIALOG_UNSUPPORTED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// WeaveError is the structured error envelope carried across the IPC
// surface: a stable code for programmatic handling, a human message, and
// optional key/value details.
type WeaveError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// New creates a WeaveError with no cause.
func New(code ErrorCode, message string) *WeaveError {
	return &WeaveError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *WeaveError {
	return &WeaveError{Code: code, Message: message, Cause: err}
}

// Error implements the error interface.
func (e *WeaveError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause to the errors package.
func (e *WeaveError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches one key/value pair and returns the error for
// chaining.
func (e *WeaveError) WithDetail(key string, value interface{}) *WeaveError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// MarshalJSON renders the wire shape. The cause chain is flattened to a
// string; error values themselves do not survive serialization.
func (e *WeaveError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Code    ErrorCode              `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
		Cause   string                 `json:"cause,omitempty"`
	}{Code: e.Code, Message: e.Message, Details: e.Details}
	if e.Cause != nil {
		payload.Cause = e.Cause.Error()
	}
	return json.Marshal(payload)
}

// ToJSON renders the error for an IPC response body.
func (e *WeaveError) ToJSON() string {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"code":%q,"message":%q}`, e.Code, e.Message)
	}
	return string(data)
}

// From finds the WeaveError anywhere in err's chain.
func From(err error) (*WeaveError, bool) {
	var weaveErr *WeaveError
	if stderrors.As(err, &weaveErr) {
		return weaveErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	weaveErr, ok := From(err)
	return ok && weaveErr.Code == code
}

// GetCode extracts the code from err, or "" for plain errors.
func GetCode(err error) ErrorCode {
	if weaveErr, ok := From(err); ok {
		return weaveErr.Code
	}
	return ""
}
