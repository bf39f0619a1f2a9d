package embedset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
)

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("embedset: GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("embedset: GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 * 1024

// -----------------------------------------------------------------------------
// HTTP part fetcher
// -----------------------------------------------------------------------------

// HTTPFetcher fetches part bodies with plain GET requests.
// Authentication and retries belong to the supplied client's transport.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET for url and returns the response body.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := h.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (h *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("embedset: create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedset: execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// -----------------------------------------------------------------------------
// HTTP job status fetcher
// -----------------------------------------------------------------------------

// HTTPStatusFetcher reads embed job status from {baseURL}/embed-jobs/{id}.
type HTTPStatusFetcher struct {
	baseURL string
	http    *HTTPFetcher
}

// NewHTTPStatusFetcher creates a status fetcher for the API at baseURL.
func NewHTTPStatusFetcher(baseURL string, client *http.Client) (*HTTPStatusFetcher, error) {
	if baseURL == "" {
		return nil, errors.New("embedset: base url is required")
	}
	if _, err := neturl.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("embedset: invalid base url: %w", err)
	}
	return &HTTPStatusFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    NewHTTPFetcher(client),
	}, nil
}

// FetchJobStatus fetches and parses the job's status payload.
func (s *HTTPStatusFetcher) FetchJobStatus(ctx context.Context, jobID string) (Payload, error) {
	if jobID == "" {
		return nil, errors.New("embedset: job id is required")
	}
	url := s.baseURL + "/embed-jobs/" + neturl.PathEscape(jobID)
	resp, err := s.http.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return ParsePayload(resp.Body)
}

// -----------------------------------------------------------------------------
// Store fetcher
// -----------------------------------------------------------------------------

// StoreFetcher serves part URLs from a Store. The URL path, without its
// leading slash, is the store key; scheme and host select the store and are
// otherwise ignored, so "s3://bucket/parts/0.avro" reads key "parts/0.avro".
type StoreFetcher struct {
	store Store
}

// NewStoreFetcher creates a PartFetcher backed by store.
func NewStoreFetcher(store Store) *StoreFetcher {
	return &StoreFetcher{store: store}
}

// Fetch opens the object addressed by url.
func (s *StoreFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	u, err := neturl.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("embedset: parse part url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("embedset: part url %q has no object key", url)
	}
	return s.store.Get(ctx, key)
}

// -----------------------------------------------------------------------------
// Scheme multiplexer
// -----------------------------------------------------------------------------

// MuxFetcher dispatches part URLs to fetchers by URL scheme.
type MuxFetcher struct {
	fetchers map[string]PartFetcher
}

// NewMuxFetcher creates an empty MuxFetcher.
func NewMuxFetcher() *MuxFetcher {
	return &MuxFetcher{fetchers: make(map[string]PartFetcher)}
}

// Handle registers f for the given URL schemes, replacing earlier entries.
func (m *MuxFetcher) Handle(f PartFetcher, schemes ...string) *MuxFetcher {
	for _, s := range schemes {
		m.fetchers[strings.ToLower(s)] = f
	}
	return m
}

// Fetch routes url to the fetcher registered for its scheme.
func (m *MuxFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	u, err := neturl.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("embedset: parse part url: %w", err)
	}
	f, ok := m.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("embedset: no fetcher for scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, url)
}

// Ensure fetchers implement the collaborator interfaces.
var (
	_ PartFetcher   = (*HTTPFetcher)(nil)
	_ PartFetcher   = (*StoreFetcher)(nil)
	_ PartFetcher   = (*MuxFetcher)(nil)
	_ StatusFetcher = (*HTTPStatusFetcher)(nil)
)
