// Package embedset provides client-side access to hosted embedding datasets
// and asynchronous embed jobs.
//
// Datasets are read part by part: each part is fetched, decoded into records
// incrementally, and the per-part record streams are concatenated in part
// order. Embed jobs are observed by polling their status until a terminal
// state is reached or a deadline expires.
package embedset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Dataset describes a multi-part dataset as returned by the API.
//
// A Dataset is a value: it is rebuilt from every server response and never
// mutated. Part order is the server's response order and determines the order
// records are produced by DatasetReader.Open.
type Dataset struct {
	ID               string
	Name             string
	DatasetType      string
	ValidationStatus string

	// SizeBytes is informational and may be zero when the server omits it.
	SizeBytes int64

	Parts []DatasetPart
}

// DatasetPart is one independently fetchable shard of a dataset.
type DatasetPart struct {
	ID   string
	Name string

	// URL is empty for parts that are not directly fetchable.
	URL string

	// Index is the part's ordinal position, when the server reports one.
	Index *int
}

// resultTypeTag marks dataset types that the client may read back.
const resultTypeTag = "result"

// Readable reports whether the dataset type marks an output dataset.
// Input datasets are write-once from the client's perspective.
func (d Dataset) Readable() bool {
	return strings.Contains(d.DatasetType, resultTypeTag)
}

// URLs returns the part URLs in part order. Parts without a URL yield "".
func (d Dataset) URLs() []string {
	urls := make([]string, len(d.Parts))
	for i, p := range d.Parts {
		urls[i] = p.URL
	}
	return urls
}

// -----------------------------------------------------------------------------
// Embed jobs
// -----------------------------------------------------------------------------

// JobStatus is the server-reported state of an embed job.
type JobStatus string

// Known job statuses. The server may report other non-terminal values.
const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// EmbedJob is a snapshot of an embed job's state.
type EmbedJob struct {
	JobID     string
	Status    JobStatus
	CreatedAt string

	// InputURL is empty when the server omits it.
	InputURL string

	// OutputURLs is nil when the server omits it.
	OutputURLs []string

	// Output references the result dataset once the server includes it.
	Output *Dataset

	Model           string
	Truncate        string
	PercentComplete float64
}

// IsTerminal reports whether the job has reached complete, failed, or cancelled.
func (j *EmbedJob) IsTerminal() bool {
	return j.Status.Terminal()
}

// OutputDataset returns the job's result dataset. When the server sent only
// output_urls, a result dataset is synthesized with one part per URL.
func (j *EmbedJob) OutputDataset() (*Dataset, bool) {
	if j.Output != nil {
		return j.Output, true
	}
	if len(j.OutputURLs) == 0 {
		return nil, false
	}
	ds := &Dataset{
		ID:          j.JobID,
		Name:        j.JobID + "-output",
		DatasetType: "embed-" + resultTypeTag,
		Parts:       make([]DatasetPart, len(j.OutputURLs)),
	}
	for i, u := range j.OutputURLs {
		idx := i
		ds.Parts[i] = DatasetPart{ID: fmt.Sprintf("%s-%d", j.JobID, i), Name: fmt.Sprintf("part-%d", i), URL: u, Index: &idx}
	}
	return ds, true
}

// CreatedTime parses CreatedAt as an RFC 3339 timestamp.
func (j *EmbedJob) CreatedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, j.CreatedAt)
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// RecordIterator is a lazy, single-pass sequence of records.
//
// Next advances to the next record and reports whether one is available.
// When Next returns false, Err reports the terminal error, if any.
// Close releases resources held by the iterator and may be called at any time.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// -----------------------------------------------------------------------------
// Collaborator interfaces
// -----------------------------------------------------------------------------

// PartFetcher opens a byte stream for a dataset part URL.
type PartFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// RecordDecoder turns a byte stream into a lazy record sequence.
//
// The returned iterator reads from r incrementally; r must stay open until
// the iterator is exhausted or closed.
type RecordDecoder interface {
	Name() string
	Decode(r io.Reader) (RecordIterator, error)
}

// StatusFetcher retrieves the current status payload of an embed job.
type StatusFetcher interface {
	FetchJobStatus(ctx context.Context, jobID string) (Payload, error)
}

// Store abstracts an object store used as a save destination or part source.
type Store interface {
	// Put writes data to the given path. It fails with ErrPathExists when
	// the path is already present.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// Compressor wraps streams with a compression format.
type Compressor interface {
	// Name returns the compressor identifier (for example, "gzip" or "zstd").
	Name() string

	// Extension returns the file extension (for example, ".gz" or "").
	Extension() string

	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values. Typed errors below unwrap to these.
var (
	// ErrMissingPartURL indicates a part without a URL was read.
	ErrMissingPartURL = errors.New("dataset part has no url")

	// ErrUnreadableDatasetType indicates an attempt to read an input dataset.
	ErrUnreadableDatasetType = errors.New("dataset type is not readable")

	// ErrUnsupportedFormat indicates a save format outside SupportedFormats.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTransportFailure marks errors returned by a PartFetcher.
	ErrTransportFailure = errors.New("transport failure")

	// ErrDecodeFailure marks errors returned while decoding a part.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrWaitTimeout indicates a job did not reach a terminal status in time.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrMalformedResponse indicates a server payload is missing a required
	// field or has a field of the wrong type.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidWaitOptions indicates a negative timeout or interval.
	ErrInvalidWaitOptions = errors.New("invalid wait options")

	// ErrNotFound indicates a requested store path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPathExists indicates an attempt to write to an existing store path.
	ErrPathExists = errors.New("path exists")
)

// MissingPartURLError names the part that could not be opened.
type MissingPartURLError struct {
	PartID string
}

func (e *MissingPartURLError) Error() string {
	return fmt.Sprintf("embedset: part %q has no url", e.PartID)
}

func (e *MissingPartURLError) Unwrap() error { return ErrMissingPartURL }

// UnreadableDatasetTypeError names the dataset that was refused.
type UnreadableDatasetTypeError struct {
	DatasetID   string
	DatasetType string
}

func (e *UnreadableDatasetTypeError) Error() string {
	return fmt.Sprintf("embedset: cannot open dataset %q of type %q: only %s datasets are readable",
		e.DatasetID, e.DatasetType, resultTypeTag)
}

func (e *UnreadableDatasetTypeError) Unwrap() error { return ErrUnreadableDatasetType }

// UnsupportedFormatError names the requested format and the supported set.
type UnsupportedFormatError struct {
	Format    string
	Supported []Format
}

func (e *UnsupportedFormatError) Error() string {
	names := make([]string, len(e.Supported))
	for i, f := range e.Supported {
		names[i] = string(f)
	}
	return fmt.Sprintf("embedset: unsupported format %q (supported: %s)", e.Format, strings.Join(names, ", "))
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// PartOp identifies the stage at which a part failed.
type PartOp string

// Part failure stages.
const (
	PartOpFetch  PartOp = "fetch"
	PartOpDecode PartOp = "decode"
)

// PartError reports a fetch or decode failure on a dataset part.
//
// It matches ErrTransportFailure or ErrDecodeFailure according to Op, and
// also matches the underlying error.
type PartError struct {
	PartID string
	Index  int
	Op     PartOp
	Err    error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("embedset: %s part %q (#%d): %v", e.Op, e.PartID, e.Index, e.Err)
}

func (e *PartError) Unwrap() []error {
	if e.Op == PartOpDecode {
		return []error{ErrDecodeFailure, e.Err}
	}
	return []error{ErrTransportFailure, e.Err}
}

// WaitTimeoutError reports how long a wait ran before giving up.
type WaitTimeoutError struct {
	JobID      string
	Elapsed    time.Duration
	Timeout    time.Duration
	LastStatus JobStatus
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("embedset: job %q still %q after %s (timeout %s)",
		e.JobID, e.LastStatus, e.Elapsed, e.Timeout)
}

func (e *WaitTimeoutError) Unwrap() error { return ErrWaitTimeout }

// MalformedResponseError describes a payload field that failed to parse.
type MalformedResponseError struct {
	Entity  string
	Field   string
	Message string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("embedset: malformed %s response: %s: %s", e.Entity, e.Field, e.Message)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }
