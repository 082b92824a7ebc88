package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// JSONCodec is the human-readable codec.
//
// Method calls are objects {"method": name, "args": value}. Success envelopes
// are one-element arrays [result]; error envelopes are [code, message, details].
// Numbers written with a fraction or exponent decode as Float, everything else
// as Int. Binary values, non-finite floats and non-string map keys have no JSON
// form and fail with ErrUnsupportedValue.
type JSONCodec struct{}

// JSON is the shared JSONCodec instance.
var JSON = JSONCodec{}

const jsonName = "json"

func (JSONCodec) Name() string { return jsonName }

func (JSONCodec) EncodeMessage(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage decodes a single JSON document. An empty payload is Null.
func (JSONCodec) DecodeMessage(buf []byte) (Value, error) {
	if len(bytes.TrimSpace(buf)) == 0 {
		return Null(), nil
	}
	return decodeJSON(buf)
}

func (c JSONCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	return c.EncodeMessage(Map(
		MapEntry{Key: String("method"), Value: String(call.Method)},
		MapEntry{Key: String("args"), Value: call.Args},
	))
}

func (JSONCodec) DecodeMethodCall(buf []byte) (MethodCall, error) {
	v, err := decodeJSON(buf)
	if err != nil {
		return MethodCall{}, err
	}
	entries, ok := v.AsMap()
	if !ok {
		return MethodCall{}, decodeErr(jsonName, 0, "method call must be an object, got %s", v.Kind())
	}
	var (
		call      MethodCall
		hasMethod bool
	)
	for _, e := range entries {
		key, _ := e.Key.AsString()
		switch key {
		case "method":
			name, ok := e.Value.AsString()
			if !ok {
				return MethodCall{}, decodeErr(jsonName, 0, "method must be a string, got %s", e.Value.Kind())
			}
			call.Method = name
			hasMethod = true
		case "args":
			call.Args = e.Value
		default:
			return MethodCall{}, decodeErr(jsonName, 0, "unknown method call field %q", key)
		}
	}
	if !hasMethod {
		return MethodCall{}, decodeErr(jsonName, 0, "method call missing \"method\"")
	}
	return call, nil
}

func (c JSONCodec) EncodeSuccessEnvelope(result Value) ([]byte, error) {
	return c.EncodeMessage(List(result))
}

func (c JSONCodec) EncodeErrorEnvelope(code, message string, details Value) ([]byte, error) {
	return c.EncodeMessage(List(String(code), String(message), details))
}

func (JSONCodec) DecodeEnvelope(buf []byte) (MethodResult, error) {
	v, err := decodeJSON(buf)
	if err != nil {
		return MethodResult{}, err
	}
	items, ok := v.AsList()
	if !ok {
		return MethodResult{}, decodeErr(jsonName, 0, "envelope must be an array, got %s", v.Kind())
	}
	switch len(items) {
	case 1:
		return Success(items[0]), nil
	case 3:
		code, ok := items[0].AsString()
		if !ok {
			return MethodResult{}, decodeErr(jsonName, 0, "error code must be a string, got %s", items[0].Kind())
		}
		message, ok := items[1].AsString()
		if !ok && !items[1].IsNull() {
			return MethodResult{}, decodeErr(jsonName, 0, "error message must be a string or null, got %s", items[1].Kind())
		}
		return Failure(code, message, items[2]), nil
	default:
		return MethodResult{}, decodeErr(jsonName, 0, "envelope has %d elements, want 1 or 3", len(items))
	}
}

func writeJSON(buf *bytes.Buffer, v Value, depth int) error {
	if depth >= MaxDepth && (v.kind == KindList || v.kind == KindMap) {
		return unsupported(jsonName, "nesting deeper than %d", MaxDepth)
	}
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return unsupported(jsonName, "non-finite float %v", v.f)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case KindString:
		return writeJSONString(buf, v.s)
	case KindBinary:
		return unsupported(jsonName, "binary values have no JSON form")
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, e := range v.m {
			key, ok := e.Key.AsString()
			if !ok {
				return unsupported(jsonName, "map key of kind %s", e.Key.kind)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, e.Value, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return unsupported(jsonName, "kind %s", v.kind)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return unsupported(jsonName, "string is not valid UTF-8")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return unsupported(jsonName, "%v", err)
	}
	buf.Write(b)
	return nil
}

func decodeJSON(buf []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()

	v, err := readJSON(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err != nil {
			return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "%v", err)
		}
		return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "trailing data %v", tok)
	}
	return v, nil
}

func readJSON(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "unexpected end of input")
		}
		return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "%v", err)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseJSONNumber(dec, t)
	case json.Delim:
		if depth >= MaxDepth {
			return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "nesting deeper than %d", MaxDepth)
		}
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := readJSON(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if err := closeJSON(dec); err != nil {
				return Value{}, err
			}
			return Value{kind: KindList, list: items}, nil
		case '{':
			entries := []MapEntry{}
			seen := map[string]struct{}{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "%v", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "object key must be a string")
				}
				if _, dup := seen[key]; dup {
					return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "duplicate key %q", key)
				}
				seen[key] = struct{}{}
				val, err := readJSON(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				entries = append(entries, MapEntry{Key: String(key), Value: val})
			}
			if err := closeJSON(dec); err != nil {
				return Value{}, err
			}
			return Value{kind: KindMap, m: entries}, nil
		}
	}
	return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "unexpected token %v", tok)
}

func closeJSON(dec *json.Decoder) error {
	if _, err := dec.Token(); err != nil {
		if errors.Is(err, io.EOF) {
			return decodeErr(jsonName, int(dec.InputOffset()), "unexpected end of input")
		}
		return decodeErr(jsonName, int(dec.InputOffset()), "%v", err)
	}
	return nil
}

func parseJSONNumber(dec *json.Decoder, n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return Value{}, decodeErr(jsonName, int(dec.InputOffset()), "number %s out of range", s)
	}
	return Float(f), nil
}
