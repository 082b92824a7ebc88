package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// ToValue converts a Go value into a Value. Common scalar, slice and
// map[string] types convert directly; anything else (structs included)
// goes through its JSON representation.
func ToValue(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, t)
		}
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Binary(t), nil
	case []Value:
		return List(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := ToValue(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]MapEntry, 0, len(keys))
		for _, k := range keys {
			v, err := ToValue(t[k])
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: String(k), Value: v})
		}
		return Value{kind: KindMap, m: entries}, nil
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, s := range t {
			fields[k] = String(s)
		}
		return StringMap(fields), nil
	case json.RawMessage:
		return JSON.DecodeMessage(t)
	}

	if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null(), nil
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return JSON.DecodeMessage(raw)
}

// MustValue is ToValue for literals in tests and static tables.
func MustValue(x any) Value {
	v, err := ToValue(x)
	if err != nil {
		panic(err)
	}
	return v
}

// FromValue stores v into the Go value pointed to by dst using JSON
// field mapping rules.
func FromValue(v Value, dst any) error {
	x, err := v.Interface()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return json.Unmarshal(raw, dst)
}
