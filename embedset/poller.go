package embedset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval is the wait between status fetches when
// WaitOptions.Interval is zero.
const DefaultPollInterval = 10 * time.Second

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// Clock is the time source of a JobPoller. Sleep blocks for d or until ctx is
// done, whichever comes first.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Wait options
// -----------------------------------------------------------------------------

// WaitOptions bounds a wait.
type WaitOptions struct {
	// Timeout bounds the total wall-clock time of the wait, measured from the
	// first status fetch. Zero waits indefinitely.
	Timeout time.Duration

	// Interval is the pause between status fetches.
	// Zero selects DefaultPollInterval.
	Interval time.Duration
}

func (o WaitOptions) resolve() (WaitOptions, error) {
	if o.Timeout < 0 {
		return o, fmt.Errorf("%w: negative timeout %s", ErrInvalidWaitOptions, o.Timeout)
	}
	if o.Interval < 0 {
		return o, fmt.Errorf("%w: negative interval %s", ErrInvalidWaitOptions, o.Interval)
	}
	if o.Interval == 0 {
		o.Interval = DefaultPollInterval
	}
	return o, nil
}

// WaitResult is delivered by WaitAsync.
type WaitResult struct {
	Job *EmbedJob
	Err error
}

// Waiter waits for embed jobs to reach a terminal status.
type Waiter interface {
	Wait(ctx context.Context, jobID string, opts WaitOptions) (*EmbedJob, error)
	WaitAsync(ctx context.Context, jobID string, opts WaitOptions) <-chan WaitResult
}

// -----------------------------------------------------------------------------
// JobPoller
// -----------------------------------------------------------------------------

// pollerConfig holds the resolved configuration for a poller.
type pollerConfig struct {
	clock  Clock
	logger *slog.Logger
}

// JobPoller turns a job status resource into a wait-for-completion call.
type JobPoller struct {
	fetcher StatusFetcher
	clock   Clock
	logger  *slog.Logger
}

// NewJobPoller creates a JobPoller with documented defaults.
//
// Default behavior:
//   - Clock: system time
//   - Logger: slog.Default()
func NewJobPoller(fetcher StatusFetcher, opts ...Option) (*JobPoller, error) {
	if fetcher == nil {
		return nil, errors.New("embedset: status fetcher is required")
	}

	cfg := &pollerConfig{
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt.applyPoller(cfg); err != nil {
			return nil, fmt.Errorf("embedset: %w", err)
		}
	}

	if cfg.clock == nil {
		return nil, errors.New("embedset: clock must not be nil")
	}
	if cfg.logger == nil {
		return nil, errors.New("embedset: logger must not be nil")
	}

	return &JobPoller{
		fetcher: fetcher,
		clock:   cfg.clock,
		logger:  cfg.logger,
	}, nil
}

// Status fetches the job's current status once.
func (p *JobPoller) Status(ctx context.Context, jobID string) (*EmbedJob, error) {
	if jobID == "" {
		return nil, errors.New("embedset: job id is required")
	}
	return p.fetch(ctx, jobID)
}

// Wait blocks until the job reaches a terminal status.
//
// The status is fetched immediately, then again after every interval. Before
// each further fetch the deadline is checked: if that fetch would happen after
// Timeout has elapsed, Wait fails with WaitTimeoutError without fetching.
// Jobs that end failed or cancelled are returned without error; inspect
// Status to tell them apart from complete jobs.
//
// Cancelling ctx interrupts an interval sleep and returns ctx.Err().
func (p *JobPoller) Wait(ctx context.Context, jobID string, opts WaitOptions) (*EmbedJob, error) {
	return p.poll(ctx, jobID, opts)
}

// WaitAsync runs the same polling as Wait on its own goroutine and delivers
// the outcome on the returned channel, which is then closed.
func (p *JobPoller) WaitAsync(ctx context.Context, jobID string, opts WaitOptions) <-chan WaitResult {
	ch := make(chan WaitResult, 1)
	go func() {
		defer close(ch)
		job, err := p.poll(ctx, jobID, opts)
		ch <- WaitResult{Job: job, Err: err}
	}()
	return ch
}

func (p *JobPoller) poll(ctx context.Context, jobID string, opts WaitOptions) (*EmbedJob, error) {
	if jobID == "" {
		return nil, errors.New("embedset: job id is required")
	}
	opts, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	logger := p.logger.With("job_id", jobID, "wait_id", uuid.NewString()[:8])
	start := p.clock.Now()
	deadline := start.Add(opts.Timeout)

	job, err := p.fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	fetches := 1

	for !job.IsTerminal() {
		logger.Debug("job not terminal", "status", job.Status, "percent_complete", job.PercentComplete, "fetches", fetches)

		if opts.Timeout > 0 && p.clock.Now().Add(opts.Interval).After(deadline) {
			return nil, p.timeout(logger, job, start, opts.Timeout)
		}
		if err := p.clock.Sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
		if opts.Timeout > 0 && p.clock.Now().After(deadline) {
			return nil, p.timeout(logger, job, start, opts.Timeout)
		}

		job, err = p.fetch(ctx, jobID)
		if err != nil {
			return nil, err
		}
		fetches++
	}

	logger.Info("job finished", "status", job.Status, "fetches", fetches, "elapsed", p.clock.Now().Sub(start))
	return job, nil
}

func (p *JobPoller) timeout(logger *slog.Logger, last *EmbedJob, start time.Time, timeout time.Duration) error {
	elapsed := p.clock.Now().Sub(start)
	logger.Warn("wait timed out", "status", last.Status, "elapsed", elapsed, "timeout", timeout)
	return &WaitTimeoutError{
		JobID:      last.JobID,
		Elapsed:    elapsed,
		Timeout:    timeout,
		LastStatus: last.Status,
	}
}

func (p *JobPoller) fetch(ctx context.Context, jobID string) (*EmbedJob, error) {
	payload, err := p.fetcher.FetchJobStatus(ctx, jobID)
	if errors.Is(err, ErrMalformedResponse) {
		return nil, fmt.Errorf("embedset: fetch status of job %q: %w", jobID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("embedset: fetch status of job %q: %w: %w", jobID, ErrTransportFailure, err)
	}
	return EmbedJobFromPayload(payload)
}

// Ensure JobPoller implements Waiter.
var _ Waiter = (*JobPoller)(nil)
