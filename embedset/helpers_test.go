package embedset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkedin/goavro/v2"
)

// -----------------------------------------------------------------------------
// Record iterators
// -----------------------------------------------------------------------------

// sliceIterator yields fixed records, then err.
type sliceIterator struct {
	records []Record
	err     error
	pos     int
	closed  bool
}

func newSliceIterator(records ...Record) *sliceIterator {
	return &sliceIterator{records: records, pos: -1}
}

func (s *sliceIterator) Next() bool {
	if s.closed || s.pos+1 >= len(s.records) {
		s.pos = len(s.records)
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Record() Record { return s.records[s.pos] }

func (s *sliceIterator) Err() error {
	if s.pos >= len(s.records) {
		return s.err
	}
	return nil
}

func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}

func collect(t *testing.T, it RecordIterator) ([]Record, error) {
	t.Helper()
	var out []Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// -----------------------------------------------------------------------------
// Part fetchers
// -----------------------------------------------------------------------------

// fakeFetcher serves bodies by URL and records every fetch.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	errs    map[string]error
	fetched []string
	open    int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[string][]byte), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("no body for %s", url)
	}
	f.open++
	return &trackedBody{Reader: bytes.NewReader(body), f: f}, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func (f *fakeFetcher) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type trackedBody struct {
	io.Reader
	f      *fakeFetcher
	closed bool
}

func (b *trackedBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.f.mu.Lock()
	b.f.open--
	b.f.mu.Unlock()
	return nil
}

// jsonlPart renders n records {"part":p,"seq":i} as JSON Lines.
func jsonlPart(p, n int) []byte {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `{"part":%d,"seq":%d}`+"\n", p, i)
	}
	return []byte(sb.String())
}

// resultDataset builds a result dataset with one part per count, served by f
// as JSON Lines.
func resultDataset(f *fakeFetcher, counts ...int) *Dataset {
	ds := &Dataset{ID: "ds-1", Name: "out", DatasetType: "embed-result", ValidationStatus: "validated"}
	for p, n := range counts {
		url := fmt.Sprintf("https://parts.example/%d.jsonl", p)
		f.bodies[url] = jsonlPart(p, n)
		ds.Parts = append(ds.Parts, DatasetPart{ID: fmt.Sprintf("p%d", p), Name: fmt.Sprintf("part-%d", p), URL: url})
	}
	return ds
}

// -----------------------------------------------------------------------------
// Avro
// -----------------------------------------------------------------------------

const embeddingSchema = `{
	"type": "record",
	"name": "Embedding",
	"fields": [
		{"name": "text", "type": "string"},
		{"name": "id", "type": "long"},
		{"name": "embedding", "type": {"type": "array", "items": "double"}}
	]
}`

// nullableSchema has union-typed fields, the usual shape of result schemas.
const nullableSchema = `{
	"type": "record",
	"name": "Result",
	"namespace": "embed",
	"fields": [
		{"name": "text", "type": ["null", "string"]},
		{"name": "embedding", "type": ["null", {"type": "array", "items": "double"}]}
	]
}`

func avroPart(t *testing.T, records ...map[string]any) []byte {
	t.Helper()
	return avroPartWithSchema(t, embeddingSchema, records...)
}

func avroPartWithSchema(t *testing.T, schema string, records ...map[string]any) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: schema})
	if err != nil {
		t.Fatalf("NewOCFWriter: %v", err)
	}
	data := make([]any, len(records))
	for i, r := range records {
		data[i] = r
	}
	if len(data) > 0 {
		if err := w.Append(data); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return buf.Bytes()
}

// -----------------------------------------------------------------------------
// Job polling
// -----------------------------------------------------------------------------

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// scriptedStatus reports statuses in order, repeating the last one.
type scriptedStatus struct {
	mu       sync.Mutex
	statuses []JobStatus
	calls    int
	err      error
}

func newScriptedStatus(statuses ...JobStatus) *scriptedStatus {
	return &scriptedStatus{statuses: statuses}
}

func (s *scriptedStatus) FetchJobStatus(_ context.Context, jobID string) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := min(s.calls-1, len(s.statuses)-1)
	return jobPayload(jobID, s.statuses[i]), nil
}

func (s *scriptedStatus) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func jobPayload(jobID string, status JobStatus) Payload {
	percent := 50.0
	if status.Terminal() {
		percent = 100
	}
	return Payload{
		"job_id":           jobID,
		"status":           string(status),
		"created_at":       "2024-01-01T00:00:00Z",
		"model":            "embed-english-v3.0",
		"truncate":         "END",
		"percent_complete": percent,
	}
}

var errBoom = errors.New("boom")
