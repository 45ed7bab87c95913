// Package batch runs the sanitizer across many documents with bounded
// concurrency, for a harness that feeds a worker pool. The sanitizer core
// itself is purely sequential and stateless per call; this package is the
// concurrent surface the core's design explicitly anticipates but does not
// provide on its own.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/wudi/pdfsanitize/sanitize"
)

// Job is one document to sanitize, identified by an opaque ID the caller
// uses to correlate results (e.g. a filename or queue message ID).
type Job struct {
	ID   string
	Data []byte
}

// Result pairs a Job's ID with its sanitized output. Run never sets Err:
// sanitize.Sanitize itself never errors, and a job that cannot be
// scheduled (context cancellation) makes Run return an error instead of
// results.
type Result struct {
	ID     string
	Bytes  []byte
	Report sanitize.Report
	Err    error
}

// Processor sanitizes a bounded number of documents concurrently.
type Processor struct {
	sem  *semaphore.Weighted
	opts sanitize.Options
}

// NewProcessor builds a Processor that admits at most maxConcurrent
// documents into sanitization at once. maxConcurrent <= 0 is treated as 1.
func NewProcessor(maxConcurrent int, opts sanitize.Options) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Processor{sem: semaphore.NewWeighted(int64(maxConcurrent)), opts: opts}
}

// Run sanitizes every job and returns results in job order. Jobs run
// concurrently up to the configured limit; each call to sanitize.Sanitize
// is independent and shares no state with the others, matching the
// core's no-synchronization-required concurrency model.
func (p *Processor) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	errs := make(chan error, len(jobs))
	done := make(chan int, len(jobs))

	for i, job := range jobs {
		i, job := i, job
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("batch: acquire slot for %s: %w", job.ID, err)
		}
		go func() {
			defer p.sem.Release(1)
			out, report := sanitize.Sanitize(job.Data, p.opts)
			results[i] = Result{ID: job.ID, Bytes: out, Report: report}
			done <- i
		}()
	}

	for range jobs {
		select {
		case <-done:
		case err := <-errs:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}
