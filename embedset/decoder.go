package embedset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// JSONL Decoder
// -----------------------------------------------------------------------------

// jsonlDecoder implements RecordDecoder for JSON Lines.
type jsonlDecoder struct{}

// NewJSONLDecoder creates a JSON Lines decoder.
//
// Each non-empty line must hold one JSON object. Key order is preserved.
func NewJSONLDecoder() RecordDecoder {
	return &jsonlDecoder{}
}

func (j *jsonlDecoder) Name() string {
	return "jsonl"
}

func (j *jsonlDecoder) Decode(r io.Reader) (RecordIterator, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	return &jsonlIterator{scanner: scanner}, nil
}

type jsonlIterator struct {
	scanner *bufio.Scanner
	line    int
	record  Record
	err     error
	done    bool
}

func (it *jsonlIterator) Next() bool {
	if it.done {
		return false
	}
	for it.scanner.Scan() {
		it.line++
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := decodeJSONObject(line)
		if err != nil {
			it.done = true
			it.err = fmt.Errorf("jsonl: line %d: %w", it.line, err)
			return false
		}
		it.record = rec
		return true
	}
	it.done = true
	it.err = it.scanner.Err()
	return false
}

func (it *jsonlIterator) Record() Record { return it.record }
func (it *jsonlIterator) Err() error     { return it.err }

func (it *jsonlIterator) Close() error {
	it.done = true
	return nil
}

var errNotObject = errors.New("expected JSON object")

// decodeJSONObject decodes one JSON object keeping key order.
func decodeJSONObject(data []byte) (Record, error) {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return Record{}, errNotObject
	}
	var fields []string
	values := make(map[string]any)
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		fields = append(fields, field)
		values[field] = iter.Read()
		return iter.Error == nil
	})
	if iter.Error != nil {
		return Record{}, iter.Error
	}
	return NewRecord(fields, values), nil
}

// -----------------------------------------------------------------------------
// Compressed Decoder
// -----------------------------------------------------------------------------

// compressedDecoder decompresses part bodies before decoding them.
type compressedDecoder struct {
	compressor Compressor
	inner      RecordDecoder
}

// NewCompressedDecoder wraps a decoder so part bodies are decompressed with c
// first, for parts stored as for example ".avro.zst" or ".jsonl.gz".
func NewCompressedDecoder(c Compressor, inner RecordDecoder) RecordDecoder {
	return &compressedDecoder{compressor: c, inner: inner}
}

func (c *compressedDecoder) Name() string {
	return c.inner.Name() + c.compressor.Extension()
}

func (c *compressedDecoder) Decode(r io.Reader) (RecordIterator, error) {
	dr, err := c.compressor.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("%s: decompress: %w", c.compressor.Name(), err)
	}
	it, err := c.inner.Decode(dr)
	if err != nil {
		_ = dr.Close()
		return nil, err
	}
	return &closingIterator{RecordIterator: it, closer: dr}, nil
}

// closingIterator closes an extra resource after its iterator.
type closingIterator struct {
	RecordIterator
	closer io.Closer
}

func (c *closingIterator) Close() error {
	err := c.RecordIterator.Close()
	if cerr := c.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

// DecoderByName returns the decoder for "avro", "jsonl", or "parquet".
// An empty name selects avro.
func DecoderByName(name string) (RecordDecoder, error) {
	switch strings.ToLower(name) {
	case "", "avro":
		return NewAvroDecoder(), nil
	case "jsonl", "json":
		return NewJSONLDecoder(), nil
	case "parquet":
		return NewParquetDecoder(), nil
	default:
		return nil, fmt.Errorf("embedset: unknown decoder %q", name)
	}
}
