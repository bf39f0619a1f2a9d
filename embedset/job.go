package embedset

import (
	"context"
	"errors"
)

// CreateEmbedJobResponse is the handle returned when an embed job is created.
//
// It carries only the job id and the Waiter that polls the job's status; it
// holds no job state of its own.
type CreateEmbedJobResponse struct {
	JobID string

	waiter Waiter
}

// NewCreateEmbedJobResponse creates a job handle that waits through waiter.
func NewCreateEmbedJobResponse(jobID string, waiter Waiter) (*CreateEmbedJobResponse, error) {
	if jobID == "" {
		return nil, errors.New("embedset: job id is required")
	}
	if waiter == nil {
		return nil, errors.New("embedset: waiter is required")
	}
	return &CreateEmbedJobResponse{JobID: jobID, waiter: waiter}, nil
}

// Wait blocks until the job reaches a terminal status. See JobPoller.Wait.
func (r *CreateEmbedJobResponse) Wait(ctx context.Context, opts WaitOptions) (*EmbedJob, error) {
	return r.waiter.Wait(ctx, r.JobID, opts)
}

// WaitAsync waits without blocking the caller. See JobPoller.WaitAsync.
func (r *CreateEmbedJobResponse) WaitAsync(ctx context.Context, opts WaitOptions) <-chan WaitResult {
	return r.waiter.WaitAsync(ctx, r.JobID, opts)
}
