package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/partforge/partforge/pkg/errors"
)

// Job is one unit of work for the pool: raw input bytes plus options.
type Job struct {
	// ID identifies the job in logs and results. Assigned automatically
	// when empty.
	ID string

	Raw  []byte
	Opts Options
}

// JobResult pairs a job with its outcome. Exactly one of Result and
// Err is set.
type JobResult struct {
	ID     string
	Result *Result
	Err    error
}

// Pool runs conversion jobs with bounded parallelism and a per-job
// time budget. Jobs submitted beyond the worker count queue until a
// worker frees up.
type Pool struct {
	runner  *Runner
	workers int
	timeout time.Duration
	sem     chan struct{}
}

// NewPool creates a pool around the given runner.
// Non-positive workers or timeout fall back to the defaults.
func NewPool(runner *Runner, workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Pool{
		runner:  runner,
		workers: workers,
		timeout: timeout,
		sem:     make(chan struct{}, workers),
	}
}

// Convert runs a single job through the pool, blocking until a worker
// slot is free. The job is cancelled when the pool's time budget is
// exceeded and fails with a timeout error.
func (p *Pool) Convert(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.runner.Convert(jobCtx, raw, opts)
	if err != nil && jobCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, errors.Wrap(errors.ErrCodeTimeout, err,
			"job exceeded the %s time budget", p.timeout)
	}
	return result, err
}

// ConvertAll runs a batch of jobs in parallel and returns results in
// submission order. Individual job failures are reported per job, not
// as a batch failure; only context cancellation aborts the batch.
func (p *Pool) ConvertAll(ctx context.Context, jobs []Job) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			jobCtx, cancel := context.WithTimeout(gctx, p.timeout)
			result, err := p.runner.Convert(jobCtx, job.Raw, job.Opts)
			cancel()

			if err != nil && jobCtx.Err() == context.DeadlineExceeded && gctx.Err() == nil {
				err = errors.Wrap(errors.ErrCodeTimeout, err,
					"job exceeded the %s time budget", p.timeout)
			}

			mu.Lock()
			results[i] = JobResult{ID: job.ID, Result: result, Err: err}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Workers returns the pool's worker count.
func (p *Pool) Workers() int { return p.workers }

// Timeout returns the pool's per-job time budget.
func (p *Pool) Timeout() time.Duration { return p.timeout }
