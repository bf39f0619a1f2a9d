package embedset

import (
	"fmt"
	"io"
	"strings"

	"github.com/linkedin/goavro/v2"
)

// -----------------------------------------------------------------------------
// Avro OCF Decoder
// -----------------------------------------------------------------------------

// avroDecoder implements RecordDecoder for Avro object container files.
type avroDecoder struct{}

// NewAvroDecoder creates a decoder for Avro object container files, the
// format dataset parts are served in.
//
// Blocks are decoded as the iterator advances. Record field order follows
// the writer schema. Union values are reported as the bare value of the
// selected branch, so a ["null","string"] field yields nil or a string.
func NewAvroDecoder() RecordDecoder {
	return &avroDecoder{}
}

func (a *avroDecoder) Name() string {
	return "avro"
}

func (a *avroDecoder) Decode(r io.Reader) (RecordIterator, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("avro: open container: %w", err)
	}
	schema, err := parseAvroSchema(ocf.Codec().Schema())
	if err != nil {
		return nil, err
	}
	fields, err := schema.fieldOrder()
	if err != nil {
		return nil, err
	}
	return &avroIterator{ocf: ocf, schema: schema, fields: fields}, nil
}

type avroIterator struct {
	ocf    *goavro.OCFReader
	schema *avroSchema
	fields []string
	record Record
	err    error
	done   bool
}

func (it *avroIterator) Next() bool {
	if it.done {
		return false
	}
	if !it.ocf.Scan() {
		it.done = true
		if err := it.ocf.Err(); err != nil {
			it.err = fmt.Errorf("avro: scan: %w", err)
		}
		return false
	}
	datum, err := it.ocf.Read()
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("avro: read: %w", err)
		return false
	}
	m, ok := it.schema.unwrap(it.schema.root, "", datum).(map[string]any)
	if !ok {
		it.done = true
		it.err = fmt.Errorf("avro: expected record datum, got %T", datum)
		return false
	}
	if it.fields == nil {
		it.record = RecordFromMap(m)
	} else {
		it.record = NewRecord(it.fields, m)
	}
	return true
}

func (it *avroIterator) Record() Record { return it.record }
func (it *avroIterator) Err() error     { return it.err }

func (it *avroIterator) Close() error {
	it.done = true
	return nil
}

// -----------------------------------------------------------------------------
// Writer schema
// -----------------------------------------------------------------------------

// avroSchema is a parsed writer schema. Decoded datums are walked alongside
// it so that union wrappers can be told apart from map values.
type avroSchema struct {
	root  any
	names map[string]avroNamed
}

// avroNamed is a named type definition and the namespace it was defined in.
type avroNamed struct {
	node map[string]any
	ns   string
}

var avroPrimitives = map[string]bool{
	"null": true, "boolean": true, "int": true, "long": true,
	"float": true, "double": true, "bytes": true, "string": true,
}

func parseAvroSchema(schema string) (*avroSchema, error) {
	var root any
	if err := json.UnmarshalFromString(schema, &root); err != nil {
		return nil, fmt.Errorf("avro: parse schema: %w", err)
	}
	s := &avroSchema{root: root, names: make(map[string]avroNamed)}
	s.collect(root, "")
	return s, nil
}

// fieldOrder returns the top-level field names of a record schema.
// Non-record schemas yield nil and records fall back to sorted keys.
func (s *avroSchema) fieldOrder() ([]string, error) {
	node, ok := s.root.(map[string]any)
	if !ok || node["type"] != "record" {
		return nil, nil
	}
	raw, _ := node["fields"].([]any)
	fields := make([]string, len(raw))
	for i, f := range raw {
		fm, _ := f.(map[string]any)
		name, _ := fm["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("avro: schema field %d has no name", i)
		}
		fields[i] = name
	}
	return fields, nil
}

// collect registers every named type so references resolve regardless of
// which union branches a datum takes.
func (s *avroSchema) collect(node any, ns string) {
	switch n := node.(type) {
	case []any:
		for _, branch := range n {
			s.collect(branch, ns)
		}
	case map[string]any:
		t, isName := n["type"].(string)
		if !isName {
			s.collect(n["type"], ns)
			return
		}
		switch t {
		case "record", "error", "enum", "fixed":
			full := avroFullName(n, ns)
			s.names[full] = avroNamed{node: n, ns: ns}
			if t == "enum" || t == "fixed" {
				return
			}
			child := avroNamespace(full)
			fields, _ := n["fields"].([]any)
			for _, f := range fields {
				if fm, ok := f.(map[string]any); ok {
					s.collect(fm["type"], child)
				}
			}
		case "array":
			s.collect(n["items"], ns)
		case "map":
			s.collect(n["values"], ns)
		}
	}
}

func (s *avroSchema) lookup(name, ns string) (avroNamed, bool) {
	if def, ok := s.names[name]; ok {
		return def, true
	}
	if ns != "" && !strings.Contains(name, ".") {
		def, ok := s.names[ns+"."+name]
		return def, ok
	}
	return avroNamed{}, false
}

// branchName is the key goavro uses to wrap a value of this union branch.
func (s *avroSchema) branchName(node any, ns string) string {
	switch n := node.(type) {
	case string:
		if avroPrimitives[n] {
			return n
		}
		if def, ok := s.lookup(n, ns); ok {
			return avroFullName(def.node, def.ns)
		}
		return n
	case map[string]any:
		t, isName := n["type"].(string)
		if !isName {
			return s.branchName(n["type"], ns)
		}
		switch t {
		case "record", "error", "enum", "fixed":
			return avroFullName(n, ns)
		case "array", "map":
			return t
		}
		if lt, ok := n["logicalType"].(string); ok && avroPrimitives[t] {
			return t + "." + lt
		}
		return s.branchName(t, ns)
	}
	return ""
}

// unwrap replaces union wrappers in v with the wrapped value, descending into
// records, arrays and maps as the schema node describes.
func (s *avroSchema) unwrap(node any, ns string, v any) any {
	if v == nil {
		return nil
	}
	switch n := node.(type) {
	case string:
		if avroPrimitives[n] {
			return v
		}
		if def, ok := s.lookup(n, ns); ok {
			return s.unwrap(def.node, def.ns, v)
		}
		return v

	case []any:
		wrapped, ok := v.(map[string]any)
		if !ok || len(wrapped) != 1 {
			return v
		}
		for key, inner := range wrapped {
			for _, branch := range n {
				if s.branchName(branch, ns) == key {
					return s.unwrap(branch, ns, inner)
				}
			}
		}
		return v

	case map[string]any:
		t, isName := n["type"].(string)
		if !isName {
			return s.unwrap(n["type"], ns, v)
		}
		switch t {
		case "record", "error":
			rec, ok := v.(map[string]any)
			if !ok {
				return v
			}
			child := avroNamespace(avroFullName(n, ns))
			out := make(map[string]any, len(rec))
			for k, fv := range rec {
				out[k] = fv
			}
			fields, _ := n["fields"].([]any)
			for _, f := range fields {
				fm, ok := f.(map[string]any)
				if !ok {
					continue
				}
				name, _ := fm["name"].(string)
				if fv, ok := rec[name]; ok {
					out[name] = s.unwrap(fm["type"], child, fv)
				}
			}
			return out
		case "array":
			items, ok := v.([]any)
			if !ok {
				return v
			}
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = s.unwrap(n["items"], ns, item)
			}
			return out
		case "map":
			values, ok := v.(map[string]any)
			if !ok {
				return v
			}
			out := make(map[string]any, len(values))
			for k, item := range values {
				out[k] = s.unwrap(n["values"], ns, item)
			}
			return out
		case "enum", "fixed":
			return v
		}
		return s.unwrap(t, ns, v)
	}
	return v
}

func avroFullName(node map[string]any, ns string) string {
	name, _ := node["name"].(string)
	if strings.Contains(name, ".") {
		return name
	}
	if explicit, ok := node["namespace"].(string); ok {
		ns = explicit
	}
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func avroNamespace(fullName string) string {
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[:i]
	}
	return ""
}
