// internal/payload/value.go

// Package payload provides an immutable JSON value type with deterministic
// serialization. Object keys marshal in sorted order and strings are escaped
// without HTML substitutions, so byte counts and content signatures are stable
// across processes.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Kind discriminates the JSON type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a closed recursive JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, num: float64(i)}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolVal returns the boolean value, false for non-bool kinds.
func (v Value) BoolVal() bool { return v.b }

// NumberVal returns the numeric value, 0 for non-number kinds.
func (v Value) NumberVal() float64 { return v.num }

// StringVal returns the string value, "" for non-string kinds.
func (v Value) StringVal() string { return v.str }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.arr }

// Len returns the element count for arrays and the field count for objects.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Keys returns the object's field names in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field looks up an object field by name.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Bytes returns the UTF-8 length of the serialized value.
func (v Value) Bytes() int {
	return len(v.appendJSON(nil))
}

// MapStrings returns a deep copy with every string leaf passed through fn.
// The path holds object keys and array indexes from the root, so fn can
// target strings under specific fields.
func (v Value) MapStrings(fn func(path []string, s string) string) Value {
	return v.mapStrings(fn, nil)
}

func (v Value) mapStrings(fn func(path []string, s string) string, path []string) Value {
	switch v.kind {
	case KindString:
		return String(fn(path, v.str))
	case KindArray:
		next := make([]Value, len(v.arr))
		for i, item := range v.arr {
			next[i] = item.mapStrings(fn, append(path[:len(path):len(path)], strconv.Itoa(i)))
		}
		return Value{kind: KindArray, arr: next}
	case KindObject:
		next := make(map[string]Value, len(v.obj))
		for key, item := range v.obj {
			next[key] = item.mapStrings(fn, append(path[:len(path):len(path)], key))
		}
		return Value{kind: KindObject, obj: next}
	default:
		return v
	}
}

// FromAny converts a decoded Go value into a Value. Non-finite floats and
// unsupported types report ok=false and are skipped by callers assembling
// arrays or objects.
func FromAny(value any) (Value, bool) {
	switch t := value.(type) {
	case nil:
		return Null(), true
	case bool:
		return Bool(t), true
	case string:
		return String(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, false
		}
		return Number(t), true
	case float32:
		return FromAny(float64(t))
	case int:
		return Int(int64(t)), true
	case int64:
		return Int(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, false
		}
		return FromAny(f)
	case []any:
		arr := make([]Value, 0, len(t))
		for _, entry := range t {
			if mapped, ok := FromAny(entry); ok {
				arr = append(arr, mapped)
			}
		}
		return Value{kind: KindArray, arr: arr}, true
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for key, entry := range t {
			if mapped, ok := FromAny(entry); ok {
				obj[key] = mapped
			}
		}
		return Value{kind: KindObject, obj: obj}, true
	default:
		return Value{}, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mapped, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("unsupported json value")
	}
	*v = mapped
	return nil
}

func (v Value) appendJSON(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindNumber:
		return appendNumber(dst, v.num)
	case KindString:
		return appendString(dst, v.str)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range v.arr {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.appendJSON(dst)
		}
		return append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, key := range v.Keys() {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, key)
			dst = append(dst, ':')
			dst = v.obj[key].appendJSON(dst)
		}
		return append(dst, '}')
	}
	return dst
}

func appendNumber(dst []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(dst, "null"...)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(dst, int64(f), 10)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64)
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if r < 0x20 {
				dst = append(dst, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				dst = utf8.AppendRune(dst, r)
			}
		}
	}
	return append(dst, '"')
}
