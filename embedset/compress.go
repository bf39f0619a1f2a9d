package embedset

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Gzip Compressor
// -----------------------------------------------------------------------------

// gzipCompressor implements Compressor using gzip compression.
type gzipCompressor struct{}

// NewGzipCompressor creates a gzip compressor.
//
// Saved exports are written in standard gzip format with the .gz extension,
// readable by gunzip and by any csv or jsonl tool that accepts gzip input.
// As a part decompressor it also accepts multi-member streams, as produced by
// concatenating gzip files.
func NewGzipCompressor() Compressor {
	return &gzipCompressor{}
}

func (g *gzipCompressor) Name() string {
	return "gzip"
}

func (g *gzipCompressor) Extension() string {
	return ".gz"
}

func (g *gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (g *gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd Compressor
// -----------------------------------------------------------------------------

// zstdCompressor implements Compressor using zstd compression.
type zstdCompressor struct{}

// NewZstdCompressor creates a zstd compressor.
//
// Output uses the Zstandard frame format with the .zst extension. It usually
// compresses embedding exports smaller and faster than gzip.
//
// Part bodies are decompressed with a single decoder goroutine.
func NewZstdCompressor() Compressor {
	return &zstdCompressor{}
}

func (z *zstdCompressor) Name() string {
	return "zstd"
}

func (z *zstdCompressor) Extension() string {
	return ".zst"
}

func (z *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (z *zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp Compressor
// -----------------------------------------------------------------------------

// noopCompressor passes data through unchanged.
type noopCompressor struct{}

// NewNoOpCompressor creates a compressor that leaves data unchanged.
//
// It is the default for saves. Its writer's Close does not close the
// underlying writer, which stays owned by the caller.
func NewNoOpCompressor() Compressor {
	return &noopCompressor{}
}

func (n *noopCompressor) Name() string {
	return "noop"
}

func (n *noopCompressor) Extension() string {
	return ""
}

func (n *noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return &noopWriteCloser{w}, nil
}

func (n *noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type noopWriteCloser struct {
	io.Writer
}

func (n *noopWriteCloser) Close() error {
	return nil
}

// CompressorByName resolves a compressor name as given on the command line.
// It accepts names and extensions: "gzip"/"gz", "zstd"/"zst", and
// "noop"/"none"/"" for no compression.
func CompressorByName(name string) (Compressor, error) {
	switch strings.ToLower(name) {
	case "", "noop", "none":
		return NewNoOpCompressor(), nil
	case "gzip", "gz":
		return NewGzipCompressor(), nil
	case "zstd", "zst":
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("embedset: unknown compressor %q", name)
	}
}
