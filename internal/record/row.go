package record

import (
	"bytes"
	"encoding/json"
)

// Field is one named cell of a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is an ordered mapping from column name to value.
// Order is the projection order of the query or file selection.
type Row []Field

// Get returns the value stored under name.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null(), false
}

// Names returns the field names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Strings returns the flat-file rendering of every field in order.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Value.String()
	}
	return out
}

// MarshalJSON writes the row as a JSON object whose keys keep field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromMap builds a Row from a map, ordered by names.
// Missing names become Null.
func FromMap(names []string, m map[string]any) Row {
	row := make(Row, len(names))
	for i, n := range names {
		row[i] = Field{Name: n, Value: FromAny(m[n])}
	}
	return row
}
