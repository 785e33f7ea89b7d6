package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/retry"
)

// Poller resolves a submission by querying the provider at a fixed interval
// until metrics appear. Each individual query gets the bounded retry policy;
// the outer loop runs until metrics arrive or the deadline expires.
type Poller struct {
	fetcher  Fetcher
	executor *retry.Executor
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// NewPoller creates a poller. timeout bounds one Wait call so a stalled
// provider cannot block a worker indefinitely; zero means no deadline.
func NewPoller(fetcher Fetcher, executor *retry.Executor, interval, timeout time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		fetcher:  fetcher,
		executor: executor,
		interval: interval,
		timeout:  timeout,
		log:      log.With().Str("component", "detect-poller").Logger(),
	}
}

// Wait blocks until the provider reports metrics for token, sleeping between
// queries. Returns the caller's context error on cancellation or deadline.
func (p *Poller) Wait(ctx context.Context, token string) (*Metrics, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	for poll := 1; ; poll++ {
		var (
			m     *Metrics
			ready bool
		)
		err := p.executor.Do(ctx, "detect-poll", func(ctx context.Context) error {
			var err error
			m, ready, err = p.fetcher.Fetch(ctx, token)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", token, err)
		}
		if ready {
			p.log.Info().Str("uuid", token).Int("polls", poll).Str("label", m.Label).Msg("detection resolved by polling")
			return m, nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
