// Package testutil provides helpers for examples and tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples and tests.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// AvroContainer encodes records as an Avro object container file, the
// format hosted dataset parts are served in.
func AvroContainer(schema string, records ...map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: schema})
	if err != nil {
		return nil, fmt.Errorf("avro writer: %w", err)
	}
	if len(records) > 0 {
		data := make([]any, len(records))
		for i, r := range records {
			data[i] = r
		}
		if err := w.Append(data); err != nil {
			return nil, fmt.Errorf("avro append: %w", err)
		}
	}
	return buf.Bytes(), nil
}
