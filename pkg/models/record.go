// Package models provides the data model shared by connectors, the run
// orchestrator and the scheduler: records, pipelines, field mappings, run logs
// and dry-run results.
//
// Records are schema-less: a Record is an ordered mapping from field name to a
// dynamically typed value (string, number, bool, nil, nested map or slice).
// Field order is preserved through JSON encoding and decoding so previews stay
// stable between calls.
package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
)

// Record is an ordered bag of fields. The zero value is ready to use.
type Record struct {
	keys   []string
	values map[string]interface{}
}

// NewRecord creates an empty record with room for size fields.
func NewRecord(size int) *Record {
	return &Record{
		keys:   make([]string, 0, size),
		values: make(map[string]interface{}, size),
	}
}

// NewRecordFromMap creates a record from a plain map. Map iteration order is
// random, so fields are inserted in sorted key order.
func NewRecordFromMap(m map[string]interface{}) *Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := NewRecord(len(keys))
	for _, k := range keys {
		r.SetData(k, m[k])
	}
	return r
}

// SetData sets a field value. New fields are appended; existing fields keep
// their position.
func (r *Record) SetData(key string, value interface{}) {
	if r.values == nil {
		r.values = make(map[string]interface{})
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// GetData returns a field value and whether it was present.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r == nil || r.values == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Delete removes a field.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Fields returns the field names in insertion order.
func (r *Record) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Range calls fn for every field in order until fn returns false.
func (r *Record) Range(fn func(key string, value interface{}) bool) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// ToMap returns a shallow copy of the fields as a plain map.
func (r *Record) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, r.Len())
	r.Range(func(k string, v interface{}) bool {
		out[k] = v
		return true
	})
	return out
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := NewRecord(len(r.keys))
	for _, k := range r.keys {
		c.SetData(k, cloneValue(r.values[k]))
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	case *Record:
		return t.Clone()
	default:
		return v
	}
}

// ValueString renders a field value the way text-based connectors write it.
func ValueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	case map[string]interface{}, []interface{}, *Record:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
