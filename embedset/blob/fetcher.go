// Package blob serves dataset parts from any gocloud.dev blob bucket.
//
// Part URLs are split into a bucket URL (scheme and host) and an object key
// (the path without its leading slash). Buckets are opened on first use and
// cached until Close. The gs:// and file:// drivers are linked in; other
// drivers can be linked by the caller or buckets registered directly.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	"gocloud.dev/gcerrors"

	"github.com/justapithecus/embedset/embedset"
)

// OpenFunc opens a bucket from a bucket URL such as "gs://name".
type OpenFunc func(ctx context.Context, bucketURL string) (*blob.Bucket, error)

// Fetcher implements embedset.PartFetcher over gocloud.dev buckets.
// It is safe for concurrent use.
type Fetcher struct {
	open OpenFunc

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
	closed  bool
}

// NewFetcher creates a Fetcher. A nil open uses blob.OpenBucket.
func NewFetcher(open OpenFunc) *Fetcher {
	if open == nil {
		open = blob.OpenBucket
	}
	return &Fetcher{
		open:    open,
		buckets: make(map[string]*blob.Bucket),
	}
}

// Register serves bucketURL from an already open bucket. The Fetcher takes
// ownership and closes it on Close.
func (f *Fetcher) Register(bucketURL string, b *blob.Bucket) error {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return fmt.Errorf("blob: parse bucket url: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("blob: fetcher is closed")
	}
	f.buckets[bucketKey(u)] = b
	return nil
}

// Fetch opens the object addressed by partURL.
// A missing object returns an error matching embedset.ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, partURL string) (io.ReadCloser, error) {
	u, err := url.Parse(partURL)
	if err != nil {
		return nil, fmt.Errorf("blob: parse part url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("blob: part url %q has no object key", partURL)
	}

	b, err := f.bucket(ctx, u)
	if err != nil {
		return nil, err
	}

	r, err := b.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("blob: %s: %w", partURL, embedset.ErrNotFound)
		}
		return nil, fmt.Errorf("blob: open %s: %w", partURL, err)
	}
	return r, nil
}

func (f *Fetcher) bucket(ctx context.Context, u *url.URL) (*blob.Bucket, error) {
	k := bucketKey(u)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("blob: fetcher is closed")
	}
	if b, ok := f.buckets[k]; ok {
		return b, nil
	}
	b, err := f.open(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("blob: open bucket %s: %w", k, err)
	}
	f.buckets[k] = b
	return b, nil
}

// Close closes every bucket the Fetcher opened or was given.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for k, b := range f.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("blob: close bucket %s: %w", k, err))
		}
	}
	f.buckets = nil
	return errors.Join(errs...)
}

// bucketKey is the bucket URL for a part URL: "scheme://host/".
func bucketKey(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + u.Host + "/"
}

// Ensure Fetcher implements embedset.PartFetcher.
var _ embedset.PartFetcher = (*Fetcher)(nil)
