// Package codec defines the dynamic Value type and the codecs that turn
// values and method calls into opaque byte payloads and back.
//
// Two families exist. A MessageCodec handles single values. A MethodCodec
// additionally handles method calls and the success/error envelopes that
// answer them. Codecs are stateless and safe for concurrent use.
package codec

// MaxDepth bounds nesting of lists and maps during decoding.
const MaxDepth = 256

// MessageCodec converts single values to bytes and back.
type MessageCodec interface {
	Name() string
	EncodeMessage(v Value) ([]byte, error)
	DecodeMessage(buf []byte) (Value, error)
}

// MethodCodec converts method calls and their result envelopes.
type MethodCodec interface {
	Name() string
	EncodeMethodCall(call MethodCall) ([]byte, error)
	DecodeMethodCall(buf []byte) (MethodCall, error)
	EncodeSuccessEnvelope(result Value) ([]byte, error)
	EncodeErrorEnvelope(code, message string, details Value) ([]byte, error)
	DecodeEnvelope(buf []byte) (MethodResult, error)
}

// MethodCall is a named invocation with an argument value.
type MethodCall struct {
	Method string
	Args   Value
}

// MethodError is the failure half of a result envelope.
type MethodError struct {
	Code    string
	Message string
	Details Value
}

func (e *MethodError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// MethodResult is a decoded envelope. Err is nil on success.
type MethodResult struct {
	Value Value
	Err   *MethodError
}

// Success builds a successful result.
func Success(v Value) MethodResult { return MethodResult{Value: v} }

// Failure builds an error result.
func Failure(code, message string, details Value) MethodResult {
	return MethodResult{Err: &MethodError{Code: code, Message: message, Details: details}}
}

// IsError reports whether the result carries an error.
func (r MethodResult) IsError() bool { return r.Err != nil }

// EncodeResult encodes either envelope form depending on r.
func EncodeResult(c MethodCodec, r MethodResult) ([]byte, error) {
	if r.Err != nil {
		return c.EncodeErrorEnvelope(r.Err.Code, r.Err.Message, r.Err.Details)
	}
	return c.EncodeSuccessEnvelope(r.Value)
}

// Lookup returns a built-in method codec by name ("json" or "standard").
func Lookup(name string) (MethodCodec, bool) {
	switch name {
	case JSON.Name():
		return JSON, true
	case Standard.Name():
		return Standard, true
	}
	return nil, false
}

// LookupMessage returns a built-in message codec by name
// ("json", "standard", "string" or "binary").
func LookupMessage(name string) (MessageCodec, bool) {
	switch name {
	case Text.Name():
		return Text, true
	case Bytes.Name():
		return Bytes, true
	case JSON.Name():
		return JSON, true
	case Standard.Name():
		return Standard, true
	}
	return nil, false
}
