package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is matched by every decode failure.
	ErrDecode = errors.New("decode error")
	// ErrUnsupportedValue is returned when a value has no representation in a codec.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// DecodeError describes malformed input. It unwraps to ErrDecode.
type DecodeError struct {
	Codec  string
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode error at offset %d: %s", e.Codec, e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

func decodeErr(codec string, offset int, format string, args ...any) error {
	return &DecodeError{Codec: codec, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

func unsupported(codec string, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", codec, ErrUnsupportedValue, fmt.Sprintf(format, args...))
}
