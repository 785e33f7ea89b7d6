package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/retry"
)

// scriptedFetcher returns pending for a number of polls, then metrics.
type scriptedFetcher struct {
	pendingPolls int
	failures     int
	metrics      Metrics
	calls        int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, token string) (*Metrics, bool, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, false, errors.New("transient network error")
	}
	if f.calls <= f.pendingPolls {
		return nil, false, nil
	}
	return &f.metrics, true, nil
}

func testPoller(f Fetcher, timeout time.Duration) *Poller {
	ex := retry.New(3, time.Millisecond, zerolog.Nop())
	return NewPoller(f, ex, time.Millisecond, timeout, zerolog.Nop())
}

func TestPoller_WaitResolvesAfterPending(t *testing.T) {
	f := &scriptedFetcher{pendingPolls: 3, metrics: Metrics{Label: "fake", AggregatedScore: 0.97}}
	p := testPoller(f, 0)

	m, err := p.Wait(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if m.Label != "fake" {
		t.Errorf("Label = %q, want fake", m.Label)
	}
	if f.calls != 4 {
		t.Errorf("fetch calls = %d, want 4", f.calls)
	}
}

func TestPoller_RetriesTransientQueryFailures(t *testing.T) {
	f := &scriptedFetcher{failures: 2, metrics: Metrics{Label: "real"}}
	p := testPoller(f, 0)

	m, err := p.Wait(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if m.Label != "real" {
		t.Errorf("Label = %q, want real", m.Label)
	}
}

func TestPoller_QueryRetriesExhausted(t *testing.T) {
	f := &scriptedFetcher{failures: 100}
	p := testPoller(f, 0)

	if _, err := p.Wait(context.Background(), "tok"); err == nil {
		t.Error("Wait should fail once a query exhausts its retries")
	}
}

func TestPoller_DeadlineExpires(t *testing.T) {
	neverReady := &scriptedFetcher{pendingPolls: 1 << 30}
	p := testPoller(neverReady, 20*time.Millisecond)

	_, err := p.Wait(context.Background(), "tok")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
