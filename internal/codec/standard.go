package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// StandardCodec is the compact binary codec.
//
// Each value is a one-byte type tag followed by its payload. Multi-byte
// numbers are little-endian. Sizes use one byte below 254, 254 followed by
// a uint16, or 255 followed by a uint32. Float payloads and typed numeric
// lists are padded so their data starts at a multiple of the element size
// measured from the start of the buffer.
type StandardCodec struct{}

// Standard is the shared StandardCodec instance.
var Standard = StandardCodec{}

const standardName = "standard"

const (
	tagNull        byte = 0
	tagTrue        byte = 1
	tagFalse       byte = 2
	tagInt32       byte = 3
	tagInt64       byte = 4
	tagLargeInt    byte = 5
	tagFloat64     byte = 6
	tagString      byte = 7
	tagUint8List   byte = 8
	tagInt32List   byte = 9
	tagInt64List   byte = 10
	tagFloat64List byte = 11
	tagList        byte = 12
	tagMap         byte = 13
	tagFloat32List byte = 14
)

const (
	envelopeSuccess byte = 0
	envelopeError   byte = 1
)

func (StandardCodec) Name() string { return standardName }

func (StandardCodec) EncodeMessage(v Value) ([]byte, error) {
	w := &stdWriter{}
	if err := w.value(v, 0); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// DecodeMessage decodes exactly one value. An empty payload is Null.
func (StandardCodec) DecodeMessage(buf []byte) (Value, error) {
	if len(buf) == 0 {
		return Null(), nil
	}
	r := &stdReader{buf: buf}
	v, err := r.value(0)
	if err != nil {
		return Value{}, err
	}
	if err := r.end(); err != nil {
		return Value{}, err
	}
	return v, nil
}

func (StandardCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	w := &stdWriter{}
	if err := w.value(String(call.Method), 0); err != nil {
		return nil, err
	}
	if err := w.value(call.Args, 0); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (StandardCodec) DecodeMethodCall(buf []byte) (MethodCall, error) {
	r := &stdReader{buf: buf}
	name, err := r.value(0)
	if err != nil {
		return MethodCall{}, err
	}
	method, ok := name.AsString()
	if !ok {
		return MethodCall{}, decodeErr(standardName, 0, "method name must be a string, got %s", name.Kind())
	}
	args, err := r.value(0)
	if err != nil {
		return MethodCall{}, err
	}
	if err := r.end(); err != nil {
		return MethodCall{}, err
	}
	return MethodCall{Method: method, Args: args}, nil
}

func (StandardCodec) EncodeSuccessEnvelope(result Value) ([]byte, error) {
	w := &stdWriter{buf: []byte{envelopeSuccess}}
	if err := w.value(result, 0); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (StandardCodec) EncodeErrorEnvelope(code, message string, details Value) ([]byte, error) {
	w := &stdWriter{buf: []byte{envelopeError}}
	for _, v := range []Value{String(code), String(message), details} {
		if err := w.value(v, 0); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

func (StandardCodec) DecodeEnvelope(buf []byte) (MethodResult, error) {
	r := &stdReader{buf: buf}
	flag, err := r.readByte()
	if err != nil {
		return MethodResult{}, err
	}
	switch flag {
	case envelopeSuccess:
		v, err := r.value(0)
		if err != nil {
			return MethodResult{}, err
		}
		if err := r.end(); err != nil {
			return MethodResult{}, err
		}
		return Success(v), nil
	case envelopeError:
		codeV, err := r.value(0)
		if err != nil {
			return MethodResult{}, err
		}
		code, ok := codeV.AsString()
		if !ok {
			return MethodResult{}, decodeErr(standardName, 1, "error code must be a string, got %s", codeV.Kind())
		}
		msgV, err := r.value(0)
		if err != nil {
			return MethodResult{}, err
		}
		message, ok := msgV.AsString()
		if !ok && !msgV.IsNull() {
			return MethodResult{}, decodeErr(standardName, r.pos, "error message must be a string or null, got %s", msgV.Kind())
		}
		details, err := r.value(0)
		if err != nil {
			return MethodResult{}, err
		}
		if err := r.end(); err != nil {
			return MethodResult{}, err
		}
		return Failure(code, message, details), nil
	default:
		return MethodResult{}, decodeErr(standardName, 0, "invalid envelope flag %d", flag)
	}
}

type stdWriter struct {
	buf []byte
}

func (w *stdWriter) size(n int) {
	switch {
	case n < 254:
		w.buf = append(w.buf, byte(n))
	case n <= math.MaxUint16:
		w.buf = append(w.buf, 254)
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(n))
	default:
		w.buf = append(w.buf, 255)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(n))
	}
}

func (w *stdWriter) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *stdWriter) value(v Value, depth int) error {
	switch v.kind {
	case KindNull:
		w.buf = append(w.buf, tagNull)
	case KindBool:
		if v.b {
			w.buf = append(w.buf, tagTrue)
		} else {
			w.buf = append(w.buf, tagFalse)
		}
	case KindInt:
		if v.i >= math.MinInt32 && v.i <= math.MaxInt32 {
			w.buf = append(w.buf, tagInt32)
			w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(int32(v.i)))
		} else {
			w.buf = append(w.buf, tagInt64)
			w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v.i))
		}
	case KindFloat:
		w.buf = append(w.buf, tagFloat64)
		w.align(8)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v.f))
	case KindString:
		if !utf8.ValidString(v.s) {
			return unsupported(standardName, "string is not valid UTF-8")
		}
		if uint64(len(v.s)) > math.MaxUint32 {
			return unsupported(standardName, "string too long")
		}
		w.buf = append(w.buf, tagString)
		w.size(len(v.s))
		w.buf = append(w.buf, v.s...)
	case KindBinary:
		if uint64(len(v.bin)) > math.MaxUint32 {
			return unsupported(standardName, "binary too long")
		}
		w.buf = append(w.buf, tagUint8List)
		w.size(len(v.bin))
		w.buf = append(w.buf, v.bin...)
	case KindList:
		if depth >= MaxDepth {
			return unsupported(standardName, "nesting deeper than %d", MaxDepth)
		}
		w.buf = append(w.buf, tagList)
		w.size(len(v.list))
		for _, item := range v.list {
			if err := w.value(item, depth+1); err != nil {
				return err
			}
		}
	case KindMap:
		if depth >= MaxDepth {
			return unsupported(standardName, "nesting deeper than %d", MaxDepth)
		}
		w.buf = append(w.buf, tagMap)
		w.size(len(v.m))
		for _, e := range v.m {
			if err := w.value(e.Key, depth+1); err != nil {
				return err
			}
			if err := w.value(e.Value, depth+1); err != nil {
				return err
			}
		}
	default:
		return unsupported(standardName, "kind %s", v.kind)
	}
	return nil
}

type stdReader struct {
	buf []byte
	pos int
}

func (r *stdReader) remaining() int { return len(r.buf) - r.pos }

func (r *stdReader) end() error {
	if r.remaining() != 0 {
		return decodeErr(standardName, r.pos, "%d trailing bytes", r.remaining())
	}
	return nil
}

func (r *stdReader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return decodeErr(standardName, r.pos, "need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *stdReader) readByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *stdReader) readBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *stdReader) align(n int) error {
	pad := (n - r.pos%n) % n
	_, err := r.readBytes(pad)
	return err
}

func (r *stdReader) size() (int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 254:
		raw, err := r.readBytes(2)
		if err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint16(raw)), nil
	case 255:
		raw, err := r.readBytes(4)
		if err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint32(raw)), nil
	default:
		return int(b), nil
	}
}

// count reads a size and checks that n elements of at least elem bytes fit
// in what is left of the buffer.
func (r *stdReader) count(elem int) (int, error) {
	at := r.pos
	n, err := r.size()
	if err != nil {
		return 0, err
	}
	if n > r.remaining()/elem {
		return 0, decodeErr(standardName, at, "length %d exceeds remaining %d bytes", n, r.remaining())
	}
	return n, nil
}

func (r *stdReader) value(depth int) (Value, error) {
	at := r.pos
	tag, err := r.readByte()
	if err != nil {
		return Value{}, err
	}

	switch tag {
	case tagNull:
		return Null(), nil
	case tagTrue:
		return Bool(true), nil
	case tagFalse:
		return Bool(false), nil
	case tagInt32:
		raw, err := r.readBytes(4)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(int32(binary.LittleEndian.Uint32(raw)))), nil
	case tagInt64:
		raw, err := r.readBytes(8)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(binary.LittleEndian.Uint64(raw))), nil
	case tagFloat64:
		if err := r.align(8); err != nil {
			return Value{}, err
		}
		raw, err := r.readBytes(8)
		if err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
	case tagString, tagLargeInt:
		s, err := r.readString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case tagUint8List:
		n, err := r.count(1)
		if err != nil {
			return Value{}, err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return Value{}, err
		}
		return Binary(raw), nil
	case tagInt32List:
		return r.typedList(4, func(raw []byte) Value {
			return Int(int64(int32(binary.LittleEndian.Uint32(raw))))
		})
	case tagInt64List:
		return r.typedList(8, func(raw []byte) Value {
			return Int(int64(binary.LittleEndian.Uint64(raw)))
		})
	case tagFloat32List:
		return r.typedList(4, func(raw []byte) Value {
			return Float(float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))))
		})
	case tagFloat64List:
		return r.typedList(8, func(raw []byte) Value {
			return Float(math.Float64frombits(binary.LittleEndian.Uint64(raw)))
		})
	case tagList, tagMap:
		if depth >= MaxDepth {
			return Value{}, decodeErr(standardName, at, "nesting deeper than %d", MaxDepth)
		}
		if tag == tagList {
			return r.list(depth)
		}
		return r.mapping(depth)
	default:
		return Value{}, decodeErr(standardName, at, "unknown type tag %d", tag)
	}
}

func (r *stdReader) readString() (string, error) {
	n, err := r.count(1)
	if err != nil {
		return "", err
	}
	at := r.pos
	raw, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", decodeErr(standardName, at, "string is not valid UTF-8")
	}
	return string(raw), nil
}

func (r *stdReader) typedList(elem int, conv func([]byte) Value) (Value, error) {
	n, err := r.size()
	if err != nil {
		return Value{}, err
	}
	if err := r.align(elem); err != nil {
		return Value{}, err
	}
	if n > r.remaining()/elem {
		return Value{}, decodeErr(standardName, r.pos, "length %d exceeds remaining %d bytes", n, r.remaining())
	}
	items := make([]Value, n)
	for i := range items {
		raw, _ := r.readBytes(elem)
		items[i] = conv(raw)
	}
	return Value{kind: KindList, list: items}, nil
}

func (r *stdReader) list(depth int) (Value, error) {
	n, err := r.count(1)
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		item, err := r.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	return Value{kind: KindList, list: items}, nil
}

func (r *stdReader) mapping(depth int) (Value, error) {
	n, err := r.count(2)
	if err != nil {
		return Value{}, err
	}
	entries := make([]MapEntry, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		at := r.pos
		key, err := r.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		fp := key.fingerprint()
		if _, dup := seen[fp]; dup {
			return Value{}, decodeErr(standardName, at, "duplicate map key %s", key)
		}
		seen[fp] = struct{}{}
		val, err := r.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, MapEntry{Key: key, Value: val})
	}
	return Value{kind: KindMap, m: entries}, nil
}
