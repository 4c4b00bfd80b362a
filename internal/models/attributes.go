package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Attributes is an insertion-ordered string→Value mapping. It carries raw vendor
// payloads and the passthrough part of a canonical alert. The zero value is
// ready to use.
type Attributes struct {
	keys []string
	vals map[string]Value
}

// NewAttributes creates an empty attribute bag.
func NewAttributes() *Attributes {
	return &Attributes{vals: make(map[string]Value)}
}

// ParseAttributes decodes a JSON object, keeping the key order of the document.
func ParseAttributes(data []byte) (*Attributes, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	attrs, ok := v.Attributes()
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	return attrs, nil
}

// Set stores v under k. Re-setting an existing key keeps its original position.
func (a *Attributes) Set(k string, v Value) {
	if a.vals == nil {
		a.vals = make(map[string]Value)
	}
	if _, exists := a.vals[k]; !exists {
		a.keys = append(a.keys, k)
	}
	a.vals[k] = v
}

func (a *Attributes) Get(k string) (Value, bool) {
	if a == nil || a.vals == nil {
		return Value{}, false
	}
	v, ok := a.vals[k]
	return v, ok
}

func (a *Attributes) Has(k string) bool {
	_, ok := a.Get(k)
	return ok
}

func (a *Attributes) Delete(k string) {
	if a == nil || a.vals == nil {
		return
	}
	if _, ok := a.vals[k]; !ok {
		return
	}
	delete(a.vals, k)
	for i, key := range a.keys {
		if key == k {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return a.keys
}

// Range calls fn for each entry in order until fn returns false.
func (a *Attributes) Range(fn func(k string, v Value) bool) {
	if a == nil {
		return
	}
	for _, k := range a.keys {
		if !fn(k, a.vals[k]) {
			return
		}
	}
}

// Clone returns a shallow copy; nested maps are shared.
func (a *Attributes) Clone() *Attributes {
	out := NewAttributes()
	a.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// StringMap flattens the bag into key→Text pairs.
func (a *Attributes) StringMap() map[string]string {
	out := make(map[string]string, a.Len())
	a.Range(func(k string, v Value) bool {
		out[k] = v.Text()
		return true
	})
	return out
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := a.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAttributes(data)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// Value stores the bag as a JSON document.
func (a Attributes) Value() (driver.Value, error) {
	b, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan loads the bag from a JSON document column.
func (a *Attributes) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	if len(b) == 0 {
		*a = Attributes{}
		return nil
	}
	return a.UnmarshalJSON(b)
}
