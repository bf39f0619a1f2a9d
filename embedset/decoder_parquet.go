package embedset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// parquetBatchSize is the number of rows read from the file per refill.
const parquetBatchSize = 128

// -----------------------------------------------------------------------------
// Parquet Decoder
// -----------------------------------------------------------------------------

// parquetDecoder implements RecordDecoder for Apache Parquet files.
type parquetDecoder struct{}

// NewParquetDecoder creates a Parquet decoder.
//
// Parquet places its metadata in a footer, so each part body is buffered in
// memory before rows are read. Rows are then converted to records in small
// batches as the iterator advances.
//
// Each leaf column becomes one record field, named after its top-level field
// when that field has a single leaf and by its dotted path otherwise.
// Repeated columns become []any.
func NewParquetDecoder() RecordDecoder {
	return &parquetDecoder{}
}

func (p *parquetDecoder) Name() string {
	return "parquet"
}

func (p *parquetDecoder) Decode(r io.Reader) (RecordIterator, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("parquet: empty file")
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet: open file: %w", err)
	}

	columns := parquetColumns(file.Schema())
	return &parquetIterator{
		reader:  parquet.NewReader(file),
		columns: columns,
		rows:    make([]parquet.Row, parquetBatchSize),
	}, nil
}

// parquetColumn describes one leaf column mapped to a record field.
type parquetColumn struct {
	field    string
	repeated bool
	text     bool
}

func parquetColumns(schema *parquet.Schema) []parquetColumn {
	paths := schema.Columns()

	leavesPerField := make(map[string]int, len(paths))
	for _, path := range paths {
		leavesPerField[path[0]]++
	}

	columns := make([]parquetColumn, len(paths))
	for i, path := range paths {
		col := parquetColumn{field: path[0]}
		if leavesPerField[path[0]] > 1 {
			col.field = strings.Join(path, ".")
		}
		if leaf, ok := schema.Lookup(path...); ok {
			col.repeated = leaf.MaxRepetitionLevel > 0
			if lt := leaf.Node.Type().LogicalType(); lt != nil {
				col.text = lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil
			}
		}
		columns[i] = col
	}
	return columns
}

type parquetIterator struct {
	reader  *parquet.Reader
	columns []parquetColumn
	rows    []parquet.Row
	pending []Record
	record  Record
	err     error
	done    bool
}

func (it *parquetIterator) Next() bool {
	for len(it.pending) == 0 {
		if it.done {
			return false
		}
		it.fill()
	}
	it.record = it.pending[0]
	it.pending = it.pending[1:]
	return true
}

func (it *parquetIterator) fill() {
	n, err := it.reader.ReadRows(it.rows)
	for i := 0; i < n; i++ {
		it.pending = append(it.pending, it.rowToRecord(it.rows[i]))
	}
	if err != nil {
		it.done = true
		if !errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("parquet: read rows: %w", err)
		}
		return
	}
	if n == 0 {
		it.done = true
	}
}

func (it *parquetIterator) rowToRecord(row parquet.Row) Record {
	fields := make([]string, len(it.columns))
	values := make(map[string]any, len(it.columns))
	for i, col := range it.columns {
		fields[i] = col.field
		if col.repeated {
			values[col.field] = []any{}
		} else {
			values[col.field] = nil
		}
	}

	for _, v := range row {
		idx := v.Column()
		if idx < 0 || idx >= len(it.columns) || v.IsNull() {
			continue
		}
		col := it.columns[idx]
		converted := parquetValue(v, col.text)
		if col.repeated {
			values[col.field] = append(values[col.field].([]any), converted)
		} else {
			values[col.field] = converted
		}
	}
	return NewRecord(fields, values)
}

// parquetValue converts a non-null parquet value to a Go value.
// Byte slices are copied because row buffers are reused between batches.
func parquetValue(v parquet.Value, text bool) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Int96:
		return v.Int96().String()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if text {
			return string(v.ByteArray())
		}
		return slices.Clone(v.ByteArray())
	default:
		return nil
	}
}

func (it *parquetIterator) Record() Record { return it.record }
func (it *parquetIterator) Err() error     { return it.err }

func (it *parquetIterator) Close() error {
	it.done = true
	it.pending = nil
	return it.reader.Close()
}
