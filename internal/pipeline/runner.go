package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Runner launches jobs in the background so HTTP handlers and the inbox
// watcher can hand off work and return immediately.
type Runner struct {
	coordinator *Coordinator
	log         zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner wraps a Coordinator. Jobs launched through the Runner run under
// the Runner's own context, not the caller's, so an HTTP request finishing
// does not cancel its job.
func NewRunner(coordinator *Coordinator, log zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		coordinator: coordinator,
		log:         log.With().Str("component", "runner").Logger(),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Launch starts the job in a new goroutine and returns immediately.
func (r *Runner) Launch(job AudioJob) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.log.Info().Stringer("job_id", job.ID).Str("file", job.OriginalName).Msg("job launched")
		if err := r.coordinator.Process(r.baseCtx, job); err != nil {
			// Process already logged the failure with job context.
			return
		}
	}()
}

// Shutdown cancels in-flight jobs and waits for their goroutines to exit.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// Drain waits for in-flight jobs to finish without canceling them, or until
// ctx expires.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
