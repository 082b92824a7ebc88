package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a dynamically typed, codec-agnostic payload.
// The zero Value is Null. Values are immutable: constructors copy their
// inputs and accessors hand out copies, so a Value may cross goroutines freely.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    []MapEntry
	bin  []byte
}

// MapEntry is one key/value pair of a map Value.
type MapEntry struct {
	Key   Value
	Value Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: append([]byte{}, b...)} }
func List(items ...Value) Value {
	return Value{kind: KindList, list: append([]Value{}, items...)}
}

// Map builds a map Value. Keys are unique by value equality; when the same key
// appears more than once the last entry wins.
func Map(entries ...MapEntry) Value {
	out := make([]MapEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		fp := e.Key.fingerprint()
		if i, ok := index[fp]; ok {
			out[i].Value = e.Value
			continue
		}
		index[fp] = len(out)
		out = append(out, e)
	}
	return Value{kind: KindMap, m: out}
}

// StringMap builds a map Value with string keys, sorted for stable output.
func StringMap(fields map[string]Value) Value {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]MapEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, MapEntry{Key: String(k), Value: fields[k]})
	}
	return Value{kind: KindMap, m: entries}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value{}, v.list...), true
}

func (v Value) AsMap() ([]MapEntry, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return append([]MapEntry{}, v.m...), true
}

func (v Value) AsBinary() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	return append([]byte{}, v.bin...), true
}

// Len reports the element count of lists, maps, strings and binaries.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	case KindString:
		return len(v.s)
	case KindBinary:
		return len(v.bin)
	default:
		return 0
	}
}

// Index returns the i-th element of a list.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// Lookup returns the value stored under key in a map.
func (v Value) Lookup(key Value) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.m {
		if e.Key.Equal(key) {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Get is Lookup with a string key.
func (v Value) Get(key string) (Value, bool) {
	return v.Lookup(String(key))
}

// Equal reports deep equality. Map comparison ignores entry order and NaN
// floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindBinary:
		return string(v.bin) == string(o.bin)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for _, e := range v.m {
			other, ok := o.Lookup(e.Key)
			if !ok || !other.Equal(e.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// fingerprint returns a string that is equal for two values exactly when
// Equal reports true. Used for map key uniqueness.
func (v Value) fingerprint() string {
	var sb strings.Builder
	v.writeFingerprint(&sb)
	return sb.String()
}

func (v Value) writeFingerprint(sb *strings.Builder) {
	sb.WriteByte(byte('a' + v.kind))
	switch v.kind {
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		switch {
		case math.IsNaN(v.f):
			sb.WriteString("nan")
		case v.f == 0:
			sb.WriteString("0")
		default:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.f))
			sb.Write(b[:])
		}
	case KindString:
		sb.WriteString(strconv.Itoa(len(v.s)))
		sb.WriteByte(':')
		sb.WriteString(v.s)
	case KindBinary:
		sb.WriteString(strconv.Itoa(len(v.bin)))
		sb.WriteByte(':')
		sb.Write(v.bin)
	case KindList:
		sb.WriteString(strconv.Itoa(len(v.list)))
		for _, item := range v.list {
			sb.WriteByte(',')
			item.writeFingerprint(sb)
		}
	case KindMap:
		parts := make([]string, 0, len(v.m))
		for _, e := range v.m {
			parts = append(parts, e.Key.fingerprint()+"="+e.Value.fingerprint())
		}
		sort.Strings(parts)
		sb.WriteString(strconv.Itoa(len(parts)))
		for _, p := range parts {
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(len(p)))
			sb.WriteByte(':')
			sb.WriteString(p)
		}
	}
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.bin))
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, len(v.m))
		for i, e := range v.m {
			parts[i] = e.Key.String() + ": " + e.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.kind.String()
}

// Interface converts the value into plain Go types: nil, bool, int64,
// float64, string, []byte, []any and map[string]any. Maps with non-string
// keys cannot be represented and yield ErrUnsupportedValue.
func (v Value) Interface() (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindBinary:
		return append([]byte{}, v.bin...), nil
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			x, err := item.Interface()
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case KindMap:
		out := make(map[string]any, len(v.m))
		for _, e := range v.m {
			k, ok := e.Key.AsString()
			if !ok {
				return nil, fmt.Errorf("%w: map key of kind %s", ErrUnsupportedValue, e.Key.kind)
			}
			x, err := e.Value.Interface()
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.kind)
}
