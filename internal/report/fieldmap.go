// File path: internal/report/fieldmap.go
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a Value with its concrete type. The explicit tag is what makes
// audit type inference deterministic instead of heuristic.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is one tagged variant inside a submission payload.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    *FieldMap
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps an integer.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a floating-point number.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// List wraps an ordered sequence of values.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map wraps a nested field map.
func Map(m *FieldMap) Value {
	if m == nil {
		m = NewFieldMap()
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// BoolVal returns the wrapped boolean (false unless KindBool).
func (v Value) BoolVal() bool { return v.b }

// IntVal returns the wrapped integer (zero unless KindInt).
func (v Value) IntVal() int64 { return v.i }

// FloatVal returns the wrapped float (zero unless KindFloat).
func (v Value) FloatVal() float64 { return v.f }

// StringVal returns the wrapped string (empty unless KindString).
func (v Value) StringVal() string { return v.s }

// ListVal returns the wrapped list (nil unless KindList).
func (v Value) ListVal() []Value { return v.list }

// MapVal returns the wrapped nested map (nil unless KindMap).
func (v Value) MapVal() *FieldMap { return v.m }

// IsNull reports whether the value carries the null tag.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal performs a deep comparison of two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for idx := range v.list {
			if !v.list[idx].Equal(other.list[idx]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(other.m)
	}
	return false
}

// Text renders the canonical text serialization stored in audit field
// changes: scalars render bare, structured values render as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		buf := &bytes.Buffer{}
		buf.WriteByte('[')
		for idx, item := range v.list {
			if idx > 0 {
				buf.WriteByte(',')
			}
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(raw)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			fm := NewFieldMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("decode object key: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("decode object key: unexpected token %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fm.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode object close: %w", err)
			}
			return Map(fm), nil
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
				return Value{}, fmt.Errorf("decode array close: %w", err)
			}
			return List(items...), nil
		}
		return Value{}, fmt.Errorf("decode value: unexpected delimiter %v", t)
	case string:
		return String(t), nil
	case json.Number:
		text := t.String()
		if !strings.ContainsAny(text, ".eE") {
			if i, err := t.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("decode number %q: %w", text, err)
		}
		return Float(f), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("decode value: unexpected token %v", tok)
}

// FieldMap is an insertion-ordered map of field name to tagged value. It is
// the payload shape for submission content and audit before/after snapshots.
type FieldMap struct {
	keys   []string
	values map[string]Value
}

// NewFieldMap returns an empty ordered field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]Value)}
}

// Set stores the value under key, preserving first-insertion order.
func (m *FieldMap) Set(key string, value Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *FieldMap) Get(key string) (Value, bool) {
	if m == nil || m.values == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key from the map.
func (m *FieldMap) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for idx, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
			break
		}
	}
}

// Keys returns the field names in insertion order.
func (m *FieldMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of fields.
func (m *FieldMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Equal performs a deep, order-insensitive comparison: two maps are equal
// when they hold the same keys with equal values.
func (m *FieldMap) Equal(other *FieldMap) bool {
	if m == nil {
		return other.Len() == 0
	}
	if m.Len() != other.Len() {
		return false
	}
	for _, key := range m.keys {
		ov, ok := other.Get(key)
		if !ok {
			return false
		}
		if !m.values[key].Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy sharing no mutable state at the top
// level. Nested maps and lists are copied as well.
func (m *FieldMap) Clone() *FieldMap {
	out := NewFieldMap()
	if m == nil {
		return out
	}
	for _, key := range m.keys {
		out.Set(key, cloneValue(m.values[key]))
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for idx, item := range v.list {
			items[idx] = cloneValue(item)
		}
		return List(items...)
	case KindMap:
		return Map(v.m.Clone())
	default:
		return v
	}
}

// MarshalJSON renders the map as a JSON object with keys in insertion order.
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for idx, key := range m.keys {
		if idx > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		raw, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object, preserving its key order.
func (m *FieldMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if parsed.Kind() != KindMap {
		return fmt.Errorf("decode field map: expected object, got kind %d", parsed.Kind())
	}
	*m = *parsed.MapVal()
	return nil
}

// ParseFieldMap decodes a serialized payload into an ordered field map. An
// empty input yields an empty map.
func ParseFieldMap(raw string) (*FieldMap, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NewFieldMap(), nil
	}
	fm := NewFieldMap()
	if err := fm.UnmarshalJSON([]byte(trimmed)); err != nil {
		return nil, fmt.Errorf("parse field map: %w", err)
	}
	return fm, nil
}

// Serialize renders the map for storage in the submission content column.
func (m *FieldMap) Serialize() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("serialize field map: %w", err)
	}
	return string(raw), nil
}
