package cli

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/spf13/cobra"

	"github.com/justapithecus/embedset/embedset"
	"github.com/justapithecus/embedset/embedset/blob"
	"github.com/justapithecus/embedset/embedset/s3"
	"github.com/justapithecus/embedset/internal/logging"
)

// bearerTransport authenticates API requests.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// apiClient is used for API calls only. Part URLs are presigned and fetched
// without credentials.
func (a *app) apiClient() *http.Client {
	if a.cfg.API.Token == "" {
		return http.DefaultClient
	}
	return &http.Client{Transport: &bearerTransport{token: a.cfg.API.Token, base: http.DefaultTransport}}
}

func (a *app) poller() (*embedset.JobPoller, error) {
	fetcher, err := embedset.NewHTTPStatusFetcher(a.cfg.API.BaseURL, a.apiClient())
	if err != nil {
		return nil, err
	}
	return embedset.NewJobPoller(fetcher, embedset.WithLogger(logging.Component("poller")))
}

// s3Store opens the configured bucket. prefix is applied to every key.
func (a *app) s3Store(ctx context.Context, prefix string) (*s3.Store, error) {
	sc := a.cfg.Storage
	if sc.Bucket == "" {
		return nil, errors.New("no S3 bucket configured (set EMBEDSET_S3_BUCKET)")
	}
	client, err := s3.NewClient(ctx, s3.ClientConfig{
		Region:          sc.Region,
		Endpoint:        sc.Endpoint,
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
		UsePathStyle:    sc.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3.New(client, s3.Config{Bucket: sc.Bucket, Prefix: prefix})
}

// partFetcher routes part URLs by scheme: http(s) directly, gs and file
// through gocloud buckets, and s3 through the configured bucket.
// The returned func releases opened buckets.
func (a *app) partFetcher(ctx context.Context) (embedset.PartFetcher, func() error, error) {
	buckets := blob.NewFetcher(nil)
	mux := embedset.NewMuxFetcher().
		Handle(embedset.NewHTTPFetcher(nil), "http", "https").
		Handle(buckets, "gs", "file")

	if a.cfg.Storage.Bucket != "" {
		store, err := a.s3Store(ctx, "")
		if err != nil {
			_ = buckets.Close()
			return nil, nil, err
		}
		mux.Handle(embedset.NewStoreFetcher(store), "s3")
	}
	return mux, buckets.Close, nil
}

// saveFlags are shared by commands that write a dataset.
type saveFlags struct {
	out          string
	s3Key        string
	format       string
	compress     string
	decoder      string
	partCompress string
}

func (f *saveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write records to this file")
	cmd.Flags().StringVar(&f.s3Key, "s3-key", "", "write records to this key in the configured S3 bucket")
	cmd.Flags().StringVarP(&f.format, "format", "f", string(embedset.FormatJSONL), "output format: jsonl or csv")
	cmd.Flags().StringVar(&f.compress, "compress", "", "compress output: gzip or zstd")
	cmd.Flags().StringVar(&f.decoder, "decoder", "avro", "part format: avro, jsonl, or parquet")
	cmd.Flags().StringVar(&f.partCompress, "part-compress", "", "decompress parts first: gzip or zstd")
}

func (f *saveFlags) requested() bool {
	return f.out != "" || f.s3Key != ""
}

func (a *app) saveDataset(ctx context.Context, ds *embedset.Dataset, f saveFlags) (int64, string, error) {
	if f.out != "" && f.s3Key != "" {
		return 0, "", errors.New("--out and --s3-key are mutually exclusive")
	}
	format, err := embedset.ParseFormat(f.format)
	if err != nil {
		return 0, "", err
	}
	compressor, err := embedset.CompressorByName(f.compress)
	if err != nil {
		return 0, "", err
	}
	decoder, err := embedset.DecoderByName(f.decoder)
	if err != nil {
		return 0, "", err
	}
	if f.partCompress != "" {
		pc, err := embedset.CompressorByName(f.partCompress)
		if err != nil {
			return 0, "", err
		}
		decoder = embedset.NewCompressedDecoder(pc, decoder)
	}

	fetcher, release, err := a.partFetcher(ctx)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = release() }()

	reader, err := embedset.NewDatasetReader(fetcher,
		embedset.WithDecoder(decoder),
		embedset.WithLogger(logging.Component("reader")),
	)
	if err != nil {
		return 0, "", err
	}

	opts := []embedset.SaveOption{embedset.WithCompressor(compressor)}
	if f.s3Key != "" {
		store, err := a.s3Store(ctx, a.cfg.Storage.Prefix)
		if err != nil {
			return 0, "", err
		}
		n, err := reader.SaveTo(ctx, ds, store, f.s3Key, format, opts...)
		return n, "s3://" + path.Join(a.cfg.Storage.Bucket, a.cfg.Storage.Prefix, f.s3Key), err
	}
	n, err := reader.Save(ctx, ds, f.out, format, opts...)
	return n, f.out, err
}
