package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the closed set of shapes a Value can take.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a vendor payload value. The zero Value is null.
type Value struct {
	kind Kind
	str  string // string payload, or the literal text of a number
	b    bool
	m    *Attributes
	list []Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Number builds a numeric value from a float.
func Number(f float64) Value {
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Int builds a numeric value from an integer without float rounding.
func Int(i int64) Value {
	return Value{kind: KindNumber, str: strconv.FormatInt(i, 10)}
}

// Map wraps a nested attribute bag. A nil bag yields an empty map.
func Map(a *Attributes) Value {
	if a == nil {
		a = NewAttributes()
	}
	return Value{kind: KindMap, m: a}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	return f, err == nil
}

func (v Value) Attributes() (*Attributes, bool) {
	return v.m, v.kind == KindMap
}

func (v Value) Items() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// IsBlank reports whether the value carries nothing: null or the empty string.
func (v Value) IsBlank() bool {
	return v.kind == KindNull || (v.kind == KindString && v.str == "")
}

// Text is the canonical string rendering used for table lookups, query strings
// and fingerprints. Nested values render as JSON with sorted map keys.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return "null"
	default:
		b, err := json.Marshal(sortedInterface(v))
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Interface converts the value into plain Go data (map[string]any, []any, ...)
// for libraries that expect it.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		f, _ := v.Float()
		return f
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			out[k] = item.Interface()
			return true
		})
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

func sortedInterface(v Value) any {
	switch v.kind {
	case KindMap:
		keys := append([]string(nil), v.m.Keys()...)
		sort.Strings(keys)
		out := make(sortedMap, 0, len(keys))
		for _, k := range keys {
			item, _ := v.m.Get(k)
			out = append(out, sortedEntry{k, sortedInterface(item)})
		}
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = sortedInterface(item)
		}
		return out
	case KindNumber:
		return json.Number(v.str)
	default:
		return v.Interface()
	}
}

type sortedEntry struct {
	key string
	val any
}

type sortedMap []sortedEntry

func (s sortedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.val)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}
	*v = parsed
	return nil
}

// ParseValue decodes an arbitrary JSON document, preserving object key order.
func ParseValue(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, str: t.String()}, nil
	case json.Delim:
		switch t {
		case '{':
			attrs := NewAttributes()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				attrs.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Map(attrs), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// FromInterface converts plain Go data into a Value. Map keys are sorted so the
// result is deterministic.
func FromInterface(in any) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Number(t)
	case json.Number:
		return Value{kind: KindNumber, str: t.String()}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := NewAttributes()
		for _, k := range keys {
			attrs.Set(k, FromInterface(t[k]))
		}
		return Map(attrs)
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := NewAttributes()
		for _, k := range keys {
			attrs.Set(k, String(t[k]))
		}
		return Map(attrs)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromInterface(item)
		}
		return List(items...)
	default:
		return String(strings.TrimSpace(fmt.Sprint(t)))
	}
}
