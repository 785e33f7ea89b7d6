// Package retry provides the bounded-retry wrapper used for every external
// call: diarization sessions, object store publishes, and authenticity
// provider requests.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/metrics"
)

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Abort marks err as permanent so Executor.Do fails immediately.
func Abort(err error) error {
	return &Permanent{Err: err}
}

// Executor runs operations with a fixed attempt budget and a fixed pause
// between attempts. No exponential backoff: the providers this service talks
// to rate-limit on burst, not on sustained load, so a flat pause is enough.
type Executor struct {
	MaxAttempts int
	Pause       time.Duration
	Log         zerolog.Logger
}

// New returns an Executor with the given budget. maxAttempts below 1 is
// clamped to 1.
func New(maxAttempts int, pause time.Duration, log zerolog.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{MaxAttempts: maxAttempts, Pause: pause, Log: log}
}

// Do runs op up to MaxAttempts times and returns the first success. On
// exhaustion it returns the last error annotated with the attempt count.
// A *Permanent error or context cancellation stops the attempts early.
// Every attempt emits one log event and one metrics increment.
func (e *Executor) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			metrics.RetryAttemptsTotal.WithLabelValues(operation, "success").Inc()
			e.Log.Debug().Str("operation", operation).Int("attempt", attempt).Msg("attempt succeeded")
			return nil
		}

		metrics.RetryAttemptsTotal.WithLabelValues(operation, "failure").Inc()
		e.Log.Warn().Err(err).Str("operation", operation).Int("attempt", attempt).Int("max_attempts", e.MaxAttempts).Msg("attempt failed")

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt == e.MaxAttempts {
			break
		}

		timer := time.NewTimer(e.Pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, e.MaxAttempts, lastErr)
}
