package reverb

import (
	"errors"
	"fmt"
	"time"
)

// Error codes as constants
const (
	ErrCodeHandshakeFailed = "HANDSHAKE_FAILED"
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeDecode          = "DECODE_ERROR"
	ErrCodeRequestFailed   = "REQUEST_FAILED"
	ErrCodeCircuitOpen     = "CIRCUIT_OPEN"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeNotConnected    = "NOT_CONNECTED"
	ErrCodePublishFailed   = "PUBLISH_FAILED"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeUnknown         = "UNKNOWN_ERROR"
)

// Error is the error type returned by every exported operation of the package.
type Error struct {
	Message   string
	Code      string
	Timestamp float64
	Details   map[string]interface{}
	err       error
}

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrHandshake    = &Error{Code: ErrCodeHandshakeFailed}
	ErrAuth         = &Error{Code: ErrCodeAuthFailed}
	ErrDecode       = &Error{Code: ErrCodeDecode}
	ErrRequest      = &Error{Code: ErrCodeRequestFailed}
	ErrCircuitOpen  = &Error{Code: ErrCodeCircuitOpen}
	ErrConfig       = &Error{Code: ErrCodeConfigInvalid}
	ErrNotConnected = &Error{Code: ErrCodeNotConnected}
)

func NewError(message, code string) *Error {
	return &Error{
		Message:   message,
		Code:      code,
		Timestamp: float64(time.Now().UnixMilli()),
	}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// AddDetail attaches a key/value to the error and returns it for chaining.
func (e *Error) AddDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *Error) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Specific error creators with common codes
func NewHandshakeError(message string, cause error) *Error {
	err := NewError(message, ErrCodeHandshakeFailed)
	err.err = cause
	return err
}

func NewAuthError(message string, status int) *Error {
	return NewError(message, ErrCodeAuthFailed).AddDetail("status_code", status)
}

func NewDecodeError(message string) *Error {
	return NewError(message, ErrCodeDecode)
}

// missingField reports a required field that was absent or had the wrong type.
func missingField(path, want string) *Error {
	return NewDecodeError(fmt.Sprintf("field %q: expected %s", path, want)).AddDetail("field", path)
}

func NewRequestError(message string, status int) *Error {
	return NewError(message, ErrCodeRequestFailed).AddDetail("status_code", status)
}

func NewConfigError(message string) *Error {
	return NewError(message, ErrCodeConfigInvalid)
}

func NewNotConnectedError(message string) *Error {
	return NewError(message, ErrCodeNotConnected)
}

// WrapError keeps err as the cause of a new *Error with the given code. The
// message says what was being done; err supplies the detail.
func WrapError(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	var rErr *Error
	if errors.As(err, &rErr) && rErr.Code == code {
		return rErr
	}
	wrapped := NewError(message, code)
	wrapped.err = err
	return wrapped
}

// IsErrorCode reports whether any *Error in err's chain has the given code.
func IsErrorCode(err error, code string) bool {
	var rErr *Error
	for err != nil {
		if !errors.As(err, &rErr) {
			return false
		}
		if rErr.Code == code {
			return true
		}
		err = rErr.err
	}
	return false
}

// IsRetryableError reports whether repeating the operation may succeed.
func IsRetryableError(err error) bool {
	for _, code := range []string{ErrCodeHandshakeFailed, ErrCodeTimeout, ErrCodeCircuitOpen} {
		if IsErrorCode(err, code) {
			return true
		}
	}
	return false
}

// IsCriticalError reports errors that need operator attention, not a retry.
func IsCriticalError(err error) bool {
	for _, code := range []string{ErrCodeAuthFailed, ErrCodeConfigInvalid} {
		if IsErrorCode(err, code) {
			return true
		}
	}
	return false
}
