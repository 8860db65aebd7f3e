package model

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// RawRecord is the untrusted key/value object produced by an external
// extractor. Keys may be misspelled or mis-cased; values are unvalidated
// scalars (string, number, bool or null).
type RawRecord map[string]any

// ParseRawRecord decodes a JSON object into a RawRecord. Numbers are kept
// as json.Number so no precision is lost before coercion.
func ParseRawRecord(data []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw RawRecord
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "model: parse raw record")
	}
	return raw, nil
}

// Keys returns the record's keys in sorted order, so iteration over a raw
// record is deterministic across runs.
func (r RawRecord) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is a schema-conformant record: exactly the schema's field names as
// keys, in schema declaration order. Values are canonical string forms.
// Both corrected records and ground truth records have this shape.
type Record struct {
	names  []string
	index  map[string]int
	values map[string]string
}

// NewRecord creates a Record over the given ordered field names, every
// value initially empty.
func NewRecord(names []string) *Record {
	ordered := make([]string, len(names))
	copy(ordered, names)
	index := make(map[string]int, len(names))
	for i, n := range ordered {
		index[n] = i
	}
	return &Record{
		names:  ordered,
		index:  index,
		values: make(map[string]string, len(names)),
	}
}

// RecordFromValues builds a Record over names, taking values from the given
// map where present.
func RecordFromValues(names []string, values map[string]string) *Record {
	rec := NewRecord(names)
	for k, v := range values {
		rec.Set(k, v)
	}
	return rec
}

// Set assigns a field value. Unknown field names are ignored so a record
// can never grow beyond its schema.
func (r *Record) Set(name, value string) {
	if _, ok := r.index[name]; ok {
		r.values[name] = value
	}
}

// Get returns the value for a field and whether the field belongs to the
// record.
func (r *Record) Get(name string) (string, bool) {
	if _, ok := r.index[name]; !ok {
		return "", false
	}
	return r.values[name], true
}

// Names returns the field names in declaration order.
func (r *Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.names) }

// Values returns a copy of the underlying value map.
func (r *Record) Values() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes the record as a JSON object with keys in
// declaration order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal field name %q", name)
		}
		val, err := json.Marshal(r.values[name])
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal field value %q", name)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
