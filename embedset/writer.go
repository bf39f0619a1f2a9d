package embedset

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Format is a flat-file serialization for records.
type Format string

// Supported formats.
const (
	// FormatJSONL writes one JSON object per line.
	FormatJSONL Format = "jsonl"

	// FormatCSV writes a header from the first record's fields, then one row
	// per record.
	FormatCSV Format = "csv"
)

var supportedFormats = []Format{FormatJSONL, FormatCSV}

// SupportedFormats returns the formats accepted by WriteRecords.
func SupportedFormats() []Format {
	return slices.Clone(supportedFormats)
}

// ParseFormat converts a format name into a Format.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if err := ValidateFormat(f); err != nil {
		return "", &UnsupportedFormatError{Format: name, Supported: SupportedFormats()}
	}
	return f, nil
}

// ValidateFormat returns an UnsupportedFormatError unless f is supported.
func ValidateFormat(f Format) error {
	if slices.Contains(supportedFormats, f) {
		return nil
	}
	return &UnsupportedFormatError{Format: string(f), Supported: SupportedFormats()}
}

// -----------------------------------------------------------------------------
// Save options
// -----------------------------------------------------------------------------

// saveConfig holds the resolved configuration for a save.
type saveConfig struct {
	compressor Compressor
}

// SaveOption configures SaveFile and SaveToStore.
type SaveOption func(*saveConfig)

// WithCompressor compresses the saved output.
// Default: NewNoOpCompressor().
func WithCompressor(c Compressor) SaveOption {
	return func(cfg *saveConfig) {
		if c != nil {
			cfg.compressor = c
		}
	}
}

func resolveSaveOptions(opts []SaveOption) *saveConfig {
	cfg := &saveConfig{compressor: NewNoOpCompressor()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// -----------------------------------------------------------------------------
// Record serialization
// -----------------------------------------------------------------------------

// WriteRecords consumes iter and serializes every record to w in format.
// It returns the number of records written.
//
// The format is checked before iter is advanced. An empty iterator writes
// nothing in either format. When iter fails mid-stream, the rows already
// written are flushed and the iterator's error is returned.
//
// In csv mode the columns are the first record's fields. Later records are
// rendered by looking up those columns: missing fields become empty cells and
// extra fields are dropped.
func WriteRecords(w io.Writer, iter RecordIterator, format Format) (int64, error) {
	if err := ValidateFormat(format); err != nil {
		return 0, err
	}
	switch format {
	case FormatCSV:
		return writeCSV(w, iter)
	default:
		return writeJSONL(w, iter)
	}
}

func writeJSONL(w io.Writer, iter RecordIterator) (int64, error) {
	bw := bufio.NewWriter(w)
	stream := json.BorrowStream(bw)
	defer json.ReturnStream(stream)

	var n int64
	var err error
	for iter.Next() {
		iter.Record().writeJSON(stream)
		stream.WriteRaw("\n")
		if err = stream.Flush(); err != nil {
			break
		}
		n++
	}
	if err == nil {
		err = iter.Err()
	}
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	return n, err
}

func writeCSV(w io.Writer, iter RecordIterator) (int64, error) {
	cw := csv.NewWriter(w)

	var header []string
	var row []string
	var n int64
	var err error
	for iter.Next() {
		rec := iter.Record()
		if header == nil {
			header = rec.Fields()
			if err = cw.Write(header); err != nil {
				break
			}
			row = make([]string, len(header))
		}
		for i, col := range header {
			v, _ := rec.Get(col)
			if row[i], err = csvCell(v); err != nil {
				break
			}
		}
		if err != nil {
			break
		}
		if err = cw.Write(row); err != nil {
			break
		}
		n++
	}
	if err == nil {
		err = iter.Err()
	}
	cw.Flush()
	if ferr := cw.Error(); err == nil {
		err = ferr
	}
	return n, err
}

// csvCell renders a record value as a csv cell.
func csvCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("embedset: render csv cell: %w", err)
		}
		return string(b), nil
	}
}

// -----------------------------------------------------------------------------
// Destinations
// -----------------------------------------------------------------------------

// SaveFile writes iter to the file at path.
//
// Output goes to a temporary file in the same directory, which is renamed
// over path only after every record is written and the file is closed. On
// any failure, including an unsupported format or an iterator error, the
// temporary file is removed and path is left untouched.
func SaveFile(path string, iter RecordIterator, format Format, opts ...SaveOption) (n int64, err error) {
	if err := ValidateFormat(format); err != nil {
		return 0, err
	}
	cfg := resolveSaveOptions(opts)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("embedset: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = writeCompressed(tmp, iter, format, cfg.compressor)
	if err != nil {
		return n, err
	}
	if err = tmp.Sync(); err != nil {
		return n, fmt.Errorf("embedset: sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return n, fmt.Errorf("embedset: close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("embedset: rename to %s: %w", path, err)
	}
	return n, nil
}

// SaveToStore writes iter to key in store. Output is spooled to a temporary
// file so that Put is only called once every record has been written.
func SaveToStore(ctx context.Context, store Store, key string, iter RecordIterator, format Format, opts ...SaveOption) (int64, error) {
	if store == nil {
		return 0, errors.New("embedset: store is required")
	}
	if err := ValidateFormat(format); err != nil {
		return 0, err
	}
	cfg := resolveSaveOptions(opts)

	tmp, err := os.CreateTemp("", "embedset-save-*")
	if err != nil {
		return 0, fmt.Errorf("embedset: create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := writeCompressed(tmp, iter, format, cfg.compressor)
	if err != nil {
		return n, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return n, fmt.Errorf("embedset: seek temp file: %w", err)
	}
	if err := store.Put(ctx, key, tmp); err != nil {
		return n, fmt.Errorf("embedset: put %s: %w", key, err)
	}
	return n, nil
}

func writeCompressed(w io.Writer, iter RecordIterator, format Format, c Compressor) (int64, error) {
	cw, err := c.Compress(w)
	if err != nil {
		return 0, fmt.Errorf("embedset: %s compress: %w", c.Name(), err)
	}
	n, err := WriteRecords(cw, iter, format)
	if cerr := cw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("embedset: %s close: %w", c.Name(), cerr)
	}
	return n, err
}
