// Package document models raw provider API records as nested values
// with total accessors. Missing keys and mismatched shapes resolve to
// null or empty instead of failing.
package document

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind tags the shape held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindMap
	KindList
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Value is one node of a raw document: a mapping, a sequence, a scalar or null.
type Value struct {
	kind   Kind
	fields map[string]Value
	items  []Value
	scalar interface{}
}

// Null is the empty value.
var Null = Value{}

// Map builds a mapping value from already converted fields.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, fields: fields}
}

// List builds a sequence value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// Scalar wraps a leaf value. A nil argument yields Null.
func Scalar(v interface{}) Value {
	if v == nil {
		return Null
	}
	return Value{kind: KindScalar, scalar: v}
}

// String wraps a string pointer, mapping nil to Null.
func String(s *string) Value {
	if s == nil {
		return Null
	}
	return Scalar(*s)
}

// Of converts decoded JSON/YAML data (maps, slices, scalars) into a Value.
func Of(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case Value:
		return val
	case map[string]interface{}:
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			fields[k] = Of(item)
		}
		return Map(fields)
	case map[interface{}]interface{}:
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			fields[fmt.Sprint(k)] = Of(item)
		}
		return Map(fields)
	case []interface{}:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, Of(item))
		}
		return List(items...)
	case []map[string]interface{}:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, Of(item))
		}
		return List(items...)
	case []string:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, Scalar(item))
		}
		return List(items...)
	default:
		return Scalar(val)
	}
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds nothing.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Get returns the field stored under key, or Null when v is not a mapping
// or the key is absent.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null
	}
	return v.fields[key]
}

// Path follows keys through nested mappings.
func (v Value) Path(keys ...string) Value {
	current := v
	for _, k := range keys {
		current = current.Get(k)
		if current.IsNull() {
			return Null
		}
	}
	return current
}

// Items returns the elements of a sequence, or nil for anything else.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Blank reports whether v is null, an empty sequence or an empty mapping.
func (v Value) Blank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindList:
		return len(v.items) == 0
	case KindMap:
		return len(v.fields) == 0
	case KindScalar:
		s, ok := v.scalar.(string)
		return ok && s == ""
	}
	return false
}

// Str returns the scalar as a string. Non-string scalars are formatted.
func (v Value) Str() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	switch s := v.scalar.(type) {
	case string:
		return s, true
	case int:
		return strconv.Itoa(s), true
	default:
		return fmt.Sprint(s), true
	}
}

// Text returns the scalar as a string, or "" when there is none.
func (v Value) Text() string {
	s, _ := v.Str()
	return s
}

// Interface converts v back into plain Go data.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindMap:
		out := make(map[string]interface{}, len(v.fields))
		for k, f := range v.fields {
			out[k] = f.Interface()
		}
		return out
	case KindList:
		out := make([]interface{}, 0, len(v.items))
		for _, item := range v.items {
			out = append(out, item.Interface())
		}
		return out
	case KindScalar:
		return v.scalar
	default:
		return nil
	}
}

// MarshalYAML lets documents round-trip through snapshot files.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.Interface(), nil
}

// UnmarshalYAML decodes any YAML node into a Value.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = Of(raw)
	return nil
}

// MarshalJSON encodes v as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Of(raw)
	return nil
}

// Flatten concatenates the elements of every sequence in values, one level
// deep, and drops nulls. Non-sequence values are kept as single elements.
func Flatten(values []Value) []Value {
	out := make([]Value, 0, len(values))
	for _, v := range values {
		switch v.kind {
		case KindNull:
			continue
		case KindList:
			for _, item := range v.items {
				if !item.IsNull() {
					out = append(out, item)
				}
			}
		default:
			out = append(out, v)
		}
	}
	return out
}

// Pluck collects the field key of every document.
func Pluck(docs []Value, key string) []Value {
	out := make([]Value, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Get(key))
	}
	return out
}

// Decode parses a YAML or JSON payload into a Value.
func Decode(data []byte) (Value, error) {
	var v Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Null, fmt.Errorf("failed to decode document: %w", err)
	}
	return v, nil
}
