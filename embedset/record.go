package embedset

import (
	"slices"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is a decoded row with a stable field order.
//
// Field order is whatever the decoder observed: schema order for Avro and
// Parquet, key order for JSON objects.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord builds a record from fields in order. Values for fields absent
// from values are nil. Duplicate field names keep their first position.
func NewRecord(fields []string, values map[string]any) Record {
	ordered := make([]string, 0, len(fields))
	vals := make(map[string]any, len(fields))
	for _, f := range fields {
		if _, dup := vals[f]; dup {
			continue
		}
		ordered = append(ordered, f)
		vals[f] = values[f]
	}
	return Record{fields: ordered, values: vals}
}

// RecordFromMap builds a record from an unordered map, ordering fields by name.
func RecordFromMap(m map[string]any) Record {
	fields := make([]string, 0, len(m))
	for k := range m {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return NewRecord(fields, m)
}

// Fields returns the record's field names in order.
func (r Record) Fields() []string {
	return slices.Clone(r.fields)
}

// Get returns the value for a field and whether the field is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Map returns a copy of the record's values.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	r.writeJSON(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return slices.Clone(stream.Buffer()), nil
}

func (r Record) writeJSON(stream *jsoniter.Stream) {
	stream.WriteObjectStart()
	for i, f := range r.fields {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(f)
		stream.WriteVal(r.values[f])
	}
	stream.WriteObjectEnd()
}
