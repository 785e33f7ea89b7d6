package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestExecutor(attempts int) *Executor {
	return New(attempts, time.Millisecond, zerolog.Nop())
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	e := newTestExecutor(5)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	e := newTestExecutor(5)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	e := newTestExecutor(5)
	boom := errors.New("boom")
	calls := 0
	err := e.Do(context.Background(), "publish", func(ctx context.Context) error {
		calls++
		return boom
	})
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "after 5 attempts") {
		t.Errorf("err = %q, want attempt count annotation", err)
	}
	if !strings.Contains(err.Error(), "publish") {
		t.Errorf("err = %q, want operation name", err)
	}
}

func TestDo_PermanentStopsEarly(t *testing.T) {
	e := newTestExecutor(5)
	fatal := errors.New("bad input")
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return Abort(fatal)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("err = %v, want bad input", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	e := New(5, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, "op", func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestNew_ClampsAttempts(t *testing.T) {
	e := New(0, 0, zerolog.Nop())
	if e.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", e.MaxAttempts)
	}
}
