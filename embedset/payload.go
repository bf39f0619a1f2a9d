package embedset

import (
	"fmt"
	"io"
	"math"
)

// Payload is a loosely typed server response body.
type Payload map[string]any

// ParsePayload decodes a JSON object from r. Numbers are kept as
// json.Number so that integer fields are parsed without loss.
func ParsePayload(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if p == nil {
		return nil, &MalformedResponseError{Entity: "payload", Field: "body", Message: "is not a JSON object"}
	}
	return p, nil
}

// -----------------------------------------------------------------------------
// Entity construction
// -----------------------------------------------------------------------------

// DatasetFromPayload builds a Dataset from a dataset response.
//
// Required: id, name, dataset_type, validation_status, dataset_parts.
// Optional: size_bytes. Parts keep their response order.
func DatasetFromPayload(p Payload) (*Dataset, error) {
	f := fieldReader{entity: "dataset", p: p}

	ds := &Dataset{
		ID:               f.requireString("id"),
		Name:             f.requireString("name"),
		DatasetType:      f.requireString("dataset_type"),
		ValidationStatus: f.requireString("validation_status"),
		SizeBytes:        f.optionalInt("size_bytes"),
	}
	rawParts := f.requireList("dataset_parts")
	if f.err != nil {
		return nil, f.err
	}

	ds.Parts = make([]DatasetPart, 0, len(rawParts))
	for i, raw := range rawParts {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &MalformedResponseError{
				Entity:  "dataset",
				Field:   fmt.Sprintf("dataset_parts[%d]", i),
				Message: fmt.Sprintf("expected object, got %T", raw),
			}
		}
		part, err := datasetPartFromPayload(Payload(obj), i)
		if err != nil {
			return nil, err
		}
		ds.Parts = append(ds.Parts, part)
	}
	return ds, nil
}

func datasetPartFromPayload(p Payload, i int) (DatasetPart, error) {
	f := fieldReader{entity: fmt.Sprintf("dataset_parts[%d]", i), p: p}
	part := DatasetPart{
		ID:   f.requireString("id"),
		Name: f.requireString("name"),
		URL:  f.optionalString("url"),
	}
	if _, ok := p["index"]; ok && p["index"] != nil {
		idx := int(f.optionalInt("index"))
		part.Index = &idx
	}
	return part, f.err
}

// EmbedJobFromPayload builds an EmbedJob from a job status response.
//
// Required: job_id, status, created_at, model, truncate, percent_complete.
// Optional: input_url, output_urls, output (a dataset object).
func EmbedJobFromPayload(p Payload) (*EmbedJob, error) {
	f := fieldReader{entity: "embed job", p: p}

	job := &EmbedJob{
		JobID:           f.requireString("job_id"),
		Status:          JobStatus(f.requireString("status")),
		CreatedAt:       f.requireString("created_at"),
		InputURL:        f.optionalString("input_url"),
		OutputURLs:      f.optionalStrings("output_urls"),
		Model:           f.requireString("model"),
		Truncate:        f.requireString("truncate"),
		PercentComplete: f.requireFloat("percent_complete"),
	}
	if f.err != nil {
		return nil, f.err
	}
	if job.PercentComplete < 0 || job.PercentComplete > 100 {
		return nil, &MalformedResponseError{
			Entity:  "embed job",
			Field:   "percent_complete",
			Message: fmt.Sprintf("%v is outside [0, 100]", job.PercentComplete),
		}
	}

	if raw, ok := p["output"]; ok && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &MalformedResponseError{Entity: "embed job", Field: "output", Message: fmt.Sprintf("expected object, got %T", raw)}
		}
		out, err := DatasetFromPayload(Payload(obj))
		if err != nil {
			return nil, fmt.Errorf("embedset: embed job %q output: %w", job.JobID, err)
		}
		job.Output = out
	}
	return job, nil
}

// CreateEmbedJobResponseFromPayload builds a job handle from a create-job
// response. The waiter performs the polling when Wait is called.
func CreateEmbedJobResponseFromPayload(p Payload, waiter Waiter) (*CreateEmbedJobResponse, error) {
	f := fieldReader{entity: "create embed job", p: p}
	id := f.requireString("job_id")
	if f.err != nil {
		return nil, f.err
	}
	return NewCreateEmbedJobResponse(id, waiter)
}

// -----------------------------------------------------------------------------
// Field access
// -----------------------------------------------------------------------------

// fieldReader extracts typed fields and records the first failure.
type fieldReader struct {
	entity string
	p      Payload
	err    error
}

func (f *fieldReader) fail(field, format string, args ...any) {
	if f.err != nil {
		return
	}
	f.err = &MalformedResponseError{Entity: f.entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

func (f *fieldReader) requireString(field string) string {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		f.fail(field, "is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		f.fail(field, "expected string, got %T", raw)
	}
	return s
}

func (f *fieldReader) optionalString(field string) string {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		f.fail(field, "expected string, got %T", raw)
	}
	return s
}

func (f *fieldReader) optionalStrings(field string) []string {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		f.fail(field, "expected list, got %T", raw)
		return nil
	}
	out := make([]string, 0, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			f.fail(fmt.Sprintf("%s[%d]", field, i), "expected string, got %T", v)
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (f *fieldReader) requireList(field string) []any {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		f.fail(field, "is required")
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		f.fail(field, "expected list, got %T", raw)
	}
	return list
}

func (f *fieldReader) requireFloat(field string) float64 {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		f.fail(field, "is required")
		return 0
	}
	v, ok := toFloat(raw)
	if !ok {
		f.fail(field, "expected number, got %T", raw)
	}
	return v
}

func (f *fieldReader) optionalInt(field string) int64 {
	raw, ok := f.p[field]
	if !ok || raw == nil {
		return 0
	}
	v, ok := toInt(raw)
	if !ok {
		f.fail(field, "expected integer, got %v", raw)
		return 0
	}
	return v
}

// number is implemented by the json.Number values ParsePayload produces.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		fl, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(fl)
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

// floatToInt accepts only integral values inside the int64 range.
func floatToInt(v float64) (int64, bool) {
	if math.Trunc(v) != v || v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
