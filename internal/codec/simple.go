package codec

import "unicode/utf8"

// StringCodec carries a single UTF-8 string as raw bytes.
// An empty payload decodes to Null and Null encodes to an empty payload.
type StringCodec struct{}

// BinaryCodec passes bytes through untouched as a Binary value.
// An empty payload decodes to Null and Null encodes to an empty payload.
type BinaryCodec struct{}

var (
	Text  = StringCodec{}
	Bytes = BinaryCodec{}
)

func (StringCodec) Name() string { return "string" }

func (c StringCodec) EncodeMessage(v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindString:
		if !utf8.ValidString(v.s) {
			return nil, unsupported(c.Name(), "string is not valid UTF-8")
		}
		return []byte(v.s), nil
	}
	return nil, unsupported(c.Name(), "kind %s", v.kind)
}

func (c StringCodec) DecodeMessage(buf []byte) (Value, error) {
	if len(buf) == 0 {
		return Null(), nil
	}
	if !utf8.Valid(buf) {
		return Value{}, decodeErr(c.Name(), 0, "payload is not valid UTF-8")
	}
	return String(string(buf)), nil
}

func (BinaryCodec) Name() string { return "binary" }

func (c BinaryCodec) EncodeMessage(v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBinary:
		return append([]byte{}, v.bin...), nil
	}
	return nil, unsupported(c.Name(), "kind %s", v.kind)
}

func (BinaryCodec) DecodeMessage(buf []byte) (Value, error) {
	if len(buf) == 0 {
		return Null(), nil
	}
	return Binary(buf), nil
}
