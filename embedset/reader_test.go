package embedset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newJSONLReader(t *testing.T, f PartFetcher) *DatasetReader {
	t.Helper()
	r, err := NewDatasetReader(f, WithDecoder(NewJSONLDecoder()))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNewDatasetReader_RequiresFetcher(t *testing.T) {
	if _, err := NewDatasetReader(nil); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestNewDatasetReader_RejectsPollerOption(t *testing.T) {
	_, err := NewDatasetReader(newFakeFetcher(), WithClock(newFakeClock()))
	if !errors.Is(err, ErrOptionNotValidForReader) {
		t.Errorf("expected ErrOptionNotValidForReader, got %v", err)
	}
}

func TestNewDatasetReader_RejectsNilDecoder(t *testing.T) {
	if _, err := NewDatasetReader(newFakeFetcher(), WithDecoder(nil)); err == nil {
		t.Error("expected error for nil decoder")
	}
}

// -----------------------------------------------------------------------------
// Open
// -----------------------------------------------------------------------------

func TestOpen_YieldsAllRecordsInPartOrder(t *testing.T) {
	f := newFakeFetcher()
	counts := []int{3, 0, 2, 4}
	ds := resultDataset(f, counts...)

	it, err := newJSONLReader(t, f).Open(t.Context(), ds)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = it.Close() }()

	records, err := collect(t, it)
	if err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(records) != 9 {
		t.Fatalf("got %d records, want 9", len(records))
	}

	i := 0
	for p, n := range counts {
		for seq := 0; seq < n; seq++ {
			gotPart, _ := records[i].Get("part")
			gotSeq, _ := records[i].Get("seq")
			if gotPart != float64(p) || gotSeq != float64(seq) {
				t.Errorf("record %d = part %v seq %v, want part %d seq %d", i, gotPart, gotSeq, p, seq)
			}
			i++
		}
	}
}

func TestOpen_FetchesLazily(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 2, 2, 2)

	it, err := newJSONLReader(t, f).Open(t.Context(), ds)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = it.Close() }()

	if got := f.fetchCount(); got != 0 {
		t.Fatalf("fetched %d parts before iteration, want 0", got)
	}

	for i, want := range []int{1, 1, 2} {
		if !it.Next() {
			t.Fatalf("Next %d returned false: %v", i, it.Err())
		}
		if got := f.fetchCount(); got != want {
			t.Errorf("after record %d: fetched %d parts, want %d", i, got, want)
		}
		if got := f.openCount(); got != 1 {
			t.Errorf("after record %d: %d bodies open, want 1", i, got)
		}
	}
}

func TestOpen_CloseReleasesOpenPart(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 5, 5)

	it, err := newJSONLReader(t, f).Open(t.Context(), ds)
	if err != nil {
		t.Fatal(err)
	}
	it.Next()
	if err := it.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := f.openCount(); got != 0 {
		t.Errorf("%d bodies still open after Close", got)
	}
	if it.Next() {
		t.Error("Next returned true after Close")
	}
	if got := f.fetchCount(); got != 1 {
		t.Errorf("fetched %d parts, want 1", got)
	}
}

func TestOpen_UnreadableDatasetType(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1)
	ds.DatasetType = "embed-input"

	_, err := newJSONLReader(t, f).Open(t.Context(), ds)
	if !errors.Is(err, ErrUnreadableDatasetType) {
		t.Fatalf("expected ErrUnreadableDatasetType, got %v", err)
	}
	var typed *UnreadableDatasetTypeError
	if !errors.As(err, &typed) || typed.DatasetType != "embed-input" {
		t.Errorf("expected UnreadableDatasetTypeError naming the type, got %v", err)
	}
	if got := f.fetchCount(); got != 0 {
		t.Errorf("fetched %d parts for unreadable dataset", got)
	}
}

func TestOpen_MissingPartURL(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 2, 2)
	ds.Parts[1].URL = ""

	it, err := newJSONLReader(t, f).Open(t.Context(), ds)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	records, err := collect(t, it)
	if len(records) != 2 {
		t.Errorf("got %d records before failure, want 2", len(records))
	}
	if !errors.Is(err, ErrMissingPartURL) {
		t.Fatalf("expected ErrMissingPartURL, got %v", err)
	}
	var typed *MissingPartURLError
	if !errors.As(err, &typed) || typed.PartID != "p1" {
		t.Errorf("expected MissingPartURLError for p1, got %v", err)
	}
}

func TestOpen_FetchFailure(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1, 1)
	f.errs[ds.Parts[1].URL] = errBoom

	it, _ := newJSONLReader(t, f).Open(t.Context(), ds)
	records, err := collect(t, it)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if !errors.Is(err, ErrTransportFailure) || !errors.Is(err, errBoom) {
		t.Fatalf("expected transport failure wrapping boom, got %v", err)
	}
	var pe *PartError
	if !errors.As(err, &pe) || pe.Index != 1 || pe.Op != PartOpFetch {
		t.Errorf("expected PartError{Index:1, Op:fetch}, got %+v", pe)
	}
}

func TestOpen_DecodeFailure(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 2)
	f.bodies[ds.Parts[0].URL] = []byte(`{"ok":1}` + "\n" + `[1,2]` + "\n")

	it, _ := newJSONLReader(t, f).Open(t.Context(), ds)
	records, err := collect(t, it)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
	if f.openCount() != 0 {
		t.Error("failed part body left open")
	}
}

func TestOpen_ContextCancelledBetweenParts(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1, 1)
	ctx, cancel := context.WithCancel(t.Context())

	it, _ := newJSONLReader(t, f).Open(ctx, ds)
	if !it.Next() {
		t.Fatal("expected first record")
	}
	cancel()
	if it.Next() {
		t.Fatal("expected iteration to stop after cancel")
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", it.Err())
	}
}

func TestOpen_AvroParts(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["s3://b/0.avro"] = avroPart(t,
		map[string]any{"text": "hello", "id": int64(1), "embedding": []any{0.1, 0.2}},
		map[string]any{"text": "world", "id": int64(2), "embedding": []any{0.3, 0.4}},
	)
	f.bodies["s3://b/1.avro"] = avroPart(t,
		map[string]any{"text": "again", "id": int64(3), "embedding": []any{0.5, 0.6}},
	)
	ds := &Dataset{ID: "ds", DatasetType: "embed-result", Parts: []DatasetPart{
		{ID: "a", URL: "s3://b/0.avro"},
		{ID: "b", URL: "s3://b/1.avro"},
	}}

	reader, err := NewDatasetReader(f)
	if err != nil {
		t.Fatal(err)
	}
	it, err := reader.Open(t.Context(), ds)
	if err != nil {
		t.Fatal(err)
	}
	records, err := collect(t, it)
	if err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if got := strings.Join(records[0].Fields(), ","); got != "text,id,embedding" {
		t.Errorf("fields = %s, want schema order", got)
	}
	if v, _ := records[2].Get("text"); v != "again" {
		t.Errorf("third record text = %v", v)
	}
}

func TestSave_AvroNullableFields(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["https://parts.example/0.avro"] = avroPartWithSchema(t, nullableSchema,
		map[string]any{"text": map[string]any{"string": "hello"}, "embedding": map[string]any{"array": []any{0.5, 1.5}}},
		map[string]any{"text": map[string]any{"string": "x"}, "embedding": nil},
		map[string]any{"text": nil, "embedding": map[string]any{"array": []any{2.0}}},
	)
	ds := &Dataset{ID: "ds", DatasetType: "embed-result", Parts: []DatasetPart{
		{ID: "a", URL: "https://parts.example/0.avro"},
	}}
	reader, err := NewDatasetReader(f)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSONL, `{"text":"hello","embedding":[0.5,1.5]}` + "\n" +
			`{"text":"x","embedding":null}` + "\n" +
			`{"text":null,"embedding":[2]}` + "\n"},
		{FormatCSV, "text,embedding\nhello,\"[0.5,1.5]\"\nx,\n,[2]\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+string(tt.format))
			n, err := reader.Save(t.Context(), ds, path, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			if n != 3 {
				t.Errorf("saved %d records, want 3", n)
			}
			data, _ := os.ReadFile(path)
			if string(data) != tt.want {
				t.Errorf("file = %q, want %q", data, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// OpenPart
// -----------------------------------------------------------------------------

func TestOpenPart(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1, 3)

	it, err := newJSONLReader(t, f).OpenPart(t.Context(), ds, 1)
	if err != nil {
		t.Fatal(err)
	}
	records, err := collect(t, it)
	if err != nil || len(records) != 3 {
		t.Fatalf("got %d records, err %v; want 3", len(records), err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if f.openCount() != 0 {
		t.Error("part body left open after Close")
	}
}

func TestOpenPart_Errors(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1, 1)
	ds.Parts[0].URL = ""
	reader := newJSONLReader(t, f)

	if _, err := reader.OpenPart(t.Context(), ds, 0); !errors.Is(err, ErrMissingPartURL) {
		t.Errorf("expected ErrMissingPartURL, got %v", err)
	}
	if _, err := reader.OpenPart(t.Context(), ds, 2); err == nil {
		t.Error("expected out of range error")
	}
	if f.fetchCount() != 0 {
		t.Errorf("fetched %d parts, want 0", f.fetchCount())
	}
}

// -----------------------------------------------------------------------------
// Save
// -----------------------------------------------------------------------------

func TestSave_JSONL(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 2, 1)
	path := filepath.Join(t.TempDir(), "out.jsonl")

	n, err := newJSONLReader(t, f).Save(t.Context(), ds, path, FormatJSONL)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("saved %d records, want 3", n)
	}
	data, _ := os.ReadFile(path)
	want := `{"part":0,"seq":0}` + "\n" + `{"part":0,"seq":1}` + "\n" + `{"part":1,"seq":0}` + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestSave_UnsupportedFormatFetchesNothing(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1)
	path := filepath.Join(t.TempDir(), "out.xml")

	_, err := newJSONLReader(t, f).Save(t.Context(), ds, path, Format("xml"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if f.fetchCount() != 0 {
		t.Error("parts fetched for unsupported format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file created for unsupported format")
	}
}

func TestSave_PartFailureLeavesNoFile(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 1, 1)
	f.errs[ds.Parts[1].URL] = errBoom
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	if _, err := newJSONLReader(t, f).Save(t.Context(), ds, path, FormatCSV); !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after failed save: %v", entries)
	}
}

func TestSaveTo_Store(t *testing.T) {
	f := newFakeFetcher()
	ds := resultDataset(f, 2)
	store := NewMemoryStore()
	reader := newJSONLReader(t, f)

	if _, err := reader.SaveTo(t.Context(), ds, store, "exports/ds.csv", FormatCSV); err != nil {
		t.Fatal(err)
	}
	ok, _ := store.Exists(t.Context(), "exports/ds.csv")
	if !ok {
		t.Fatal("saved key missing")
	}

	_, err := reader.SaveTo(t.Context(), ds, store, "exports/ds.csv", FormatCSV)
	if !errors.Is(err, ErrPathExists) {
		t.Errorf("expected ErrPathExists on second save, got %v", err)
	}
}
