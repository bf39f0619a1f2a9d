package embedset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// -----------------------------------------------------------------------------
// Reader Configuration
// -----------------------------------------------------------------------------

// readerConfig holds the resolved configuration for a reader.
type readerConfig struct {
	decoder RecordDecoder
	logger  *slog.Logger
}

// -----------------------------------------------------------------------------
// DatasetReader
// -----------------------------------------------------------------------------

// DatasetReader streams the records of result datasets.
//
// A DatasetReader holds only its collaborators; every Open call owns its own
// fetches, so a reader may be shared. The iterators it returns may not.
type DatasetReader struct {
	fetcher PartFetcher
	decoder RecordDecoder
	logger  *slog.Logger
}

// NewDatasetReader creates a DatasetReader with documented defaults.
//
// Default behavior:
//   - Decoder: NewAvroDecoder()
//   - Logger: slog.Default()
func NewDatasetReader(fetcher PartFetcher, opts ...Option) (*DatasetReader, error) {
	if fetcher == nil {
		return nil, errors.New("embedset: part fetcher is required")
	}

	cfg := &readerConfig{
		decoder: NewAvroDecoder(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt.applyReader(cfg); err != nil {
			return nil, fmt.Errorf("embedset: %w", err)
		}
	}

	if cfg.decoder == nil {
		return nil, errors.New("embedset: decoder must not be nil")
	}
	if cfg.logger == nil {
		return nil, errors.New("embedset: logger must not be nil")
	}

	return &DatasetReader{
		fetcher: fetcher,
		decoder: cfg.decoder,
		logger:  cfg.logger,
	}, nil
}

// Open returns a lazy iterator over all records of ds, part by part in part
// order.
//
// Open fails with UnreadableDatasetTypeError for input datasets before any
// fetch is issued. No part is fetched until the consumer reaches it. A part
// without a URL, or a part whose fetch or decode fails, ends the iteration
// with that error; records already yielded remain valid.
func (r *DatasetReader) Open(ctx context.Context, ds *Dataset) (RecordIterator, error) {
	if err := checkReadable(ds); err != nil {
		return nil, err
	}
	return &partIterator{
		ctx:    ctx,
		reader: r,
		ds:     ds,
		logger: r.logger.With("dataset_id", ds.ID),
	}, nil
}

// OpenPart opens a single part of ds. Unlike Open, a part without a URL fails
// immediately, and the part is fetched before OpenPart returns.
func (r *DatasetReader) OpenPart(ctx context.Context, ds *Dataset, index int) (RecordIterator, error) {
	if err := checkReadable(ds); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ds.Parts) {
		return nil, fmt.Errorf("embedset: part index %d out of range [0, %d)", index, len(ds.Parts))
	}
	body, it, err := r.openPart(ctx, ds.Parts[index], index)
	if err != nil {
		return nil, err
	}
	return &closingIterator{RecordIterator: it, closer: body}, nil
}

func checkReadable(ds *Dataset) error {
	if ds == nil {
		return errors.New("embedset: dataset is required")
	}
	if !ds.Readable() {
		return &UnreadableDatasetTypeError{DatasetID: ds.ID, DatasetType: ds.DatasetType}
	}
	return nil
}

// openPart fetches and starts decoding one part. The caller owns body.
func (r *DatasetReader) openPart(ctx context.Context, part DatasetPart, index int) (io.ReadCloser, RecordIterator, error) {
	if part.URL == "" {
		return nil, nil, &MissingPartURLError{PartID: part.ID}
	}

	r.logger.Debug("fetching dataset part", "part_id", part.ID, "index", index, "decoder", r.decoder.Name())
	body, err := r.fetcher.Fetch(ctx, part.URL)
	if err != nil {
		return nil, nil, &PartError{PartID: part.ID, Index: index, Op: PartOpFetch, Err: err}
	}

	it, err := r.decoder.Decode(body)
	if err != nil {
		_ = body.Close()
		return nil, nil, &PartError{PartID: part.ID, Index: index, Op: PartOpDecode, Err: err}
	}
	return body, it, nil
}

// -----------------------------------------------------------------------------
// Part iterator
// -----------------------------------------------------------------------------

// partIterator concatenates the decoded records of each part in order,
// holding at most one part open at a time.
type partIterator struct {
	ctx    context.Context
	reader *DatasetReader
	ds     *Dataset
	logger *slog.Logger

	next    int // index of the next part to open
	current RecordIterator
	body    io.ReadCloser
	record  Record
	count   int
	err     error
	closed  bool
}

func (it *partIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	for {
		if it.current == nil {
			if it.next >= len(it.ds.Parts) {
				return false
			}
			if err := it.ctx.Err(); err != nil {
				it.err = err
				return false
			}
			index := it.next
			it.next++
			body, dec, err := it.reader.openPart(it.ctx, it.ds.Parts[index], index)
			if err != nil {
				it.err = err
				it.logger.Debug("dataset part failed", "index", index, "error", err)
				return false
			}
			it.body, it.current = body, dec
			it.count = 0
		}

		if it.current.Next() {
			it.record = it.current.Record()
			it.count++
			return true
		}

		index := it.next - 1
		part := it.ds.Parts[index]
		decErr := it.current.Err()
		closeErr := it.closePart()
		if decErr != nil {
			it.err = &PartError{PartID: part.ID, Index: index, Op: PartOpDecode, Err: decErr}
			return false
		}
		if closeErr != nil {
			it.err = &PartError{PartID: part.ID, Index: index, Op: PartOpFetch, Err: closeErr}
			return false
		}
		it.logger.Debug("dataset part done", "part_id", part.ID, "index", index, "records", it.count)
	}
}

func (it *partIterator) Record() Record { return it.record }
func (it *partIterator) Err() error     { return it.err }

// Close releases the open part, if any. Further calls to Next return false.
func (it *partIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.closePart()
}

func (it *partIterator) closePart() error {
	var err error
	if it.current != nil {
		err = it.current.Close()
		it.current = nil
	}
	if it.body != nil {
		if cerr := it.body.Close(); err == nil {
			err = cerr
		}
		it.body = nil
	}
	return err
}

// -----------------------------------------------------------------------------
// Saving
// -----------------------------------------------------------------------------

// Save writes all records of ds to a file at path in the given format.
// See SaveFile for the file semantics. Nothing is fetched or written when the
// format is unsupported or the dataset is not readable.
func (r *DatasetReader) Save(ctx context.Context, ds *Dataset, path string, format Format, opts ...SaveOption) (int64, error) {
	if err := ValidateFormat(format); err != nil {
		return 0, err
	}
	it, err := r.Open(ctx, ds)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	n, err := SaveFile(path, it, format, opts...)
	if err != nil {
		return n, err
	}
	r.logger.Info("dataset saved", "dataset_id", ds.ID, "path", path, "format", format, "records", n)
	return n, nil
}

// SaveTo writes all records of ds to key in store in the given format.
func (r *DatasetReader) SaveTo(ctx context.Context, ds *Dataset, store Store, key string, format Format, opts ...SaveOption) (int64, error) {
	if err := ValidateFormat(format); err != nil {
		return 0, err
	}
	it, err := r.Open(ctx, ds)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	n, err := SaveToStore(ctx, store, key, it, format, opts...)
	if err != nil {
		return n, err
	}
	r.logger.Info("dataset saved", "dataset_id", ds.ID, "key", key, "format", format, "records", n)
	return n, nil
}
