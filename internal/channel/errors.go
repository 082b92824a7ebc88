package channel

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/embedder/internal/codec"
)

// Error codes carried by error envelopes produced by this package.
const (
	CodeNotImplemented = "not_implemented"
	CodeChannelClosed  = "channel_closed"
	CodeDecodeError    = "decode_error"
	CodeInternal       = "internal_error"
)

var (
	// ErrNotImplemented is returned by method handlers for unknown method names.
	ErrNotImplemented = errors.New("method not implemented")
	// ErrChannelClosed means the channel's handler is gone.
	ErrChannelClosed = errors.New("channel closed")
)

// MethodCallError is a handler-raised domain error. Its fields are copied
// verbatim into the error envelope.
type MethodCallError struct {
	Code    string
	Message string
	Details codec.Value
}

func (e *MethodCallError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMethodCallError builds a custom error envelope payload.
func NewMethodCallError(code, message string, details codec.Value) *MethodCallError {
	return &MethodCallError{Code: code, Message: message, Details: details}
}

// NotImplemented wraps ErrNotImplemented with the method name.
func NotImplemented(method string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, method)
}

// DecodeArgs converts call arguments into dst. Conversion failures come back
// as a decode_error MethodCallError.
func DecodeArgs(args codec.Value, dst any) error {
	if err := codec.FromValue(args, dst); err != nil {
		return &MethodCallError{Code: CodeDecodeError, Message: err.Error()}
	}
	return nil
}

// toEnvelope maps a handler error onto the fixed error taxonomy.
func toEnvelope(err error) *codec.MethodError {
	var mce *MethodCallError
	switch {
	case errors.As(err, &mce):
		return &codec.MethodError{Code: mce.Code, Message: mce.Message, Details: mce.Details}
	case errors.Is(err, ErrNotImplemented):
		return &codec.MethodError{Code: CodeNotImplemented, Message: err.Error()}
	case errors.Is(err, ErrChannelClosed):
		return &codec.MethodError{Code: CodeChannelClosed, Message: err.Error()}
	case errors.Is(err, codec.ErrDecode):
		return &codec.MethodError{Code: CodeDecodeError, Message: err.Error()}
	default:
		return &codec.MethodError{Code: CodeInternal, Message: err.Error()}
	}
}
