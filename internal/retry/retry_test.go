package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

type recorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recorder) observe(_ string, _ int, _ error, d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	rec := &recorder{}
	ex := New(fastPolicy(5), WithObserver(rec.observe))

	calls := 0
	got, err := Do(context.Background(), ex, "flaky", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Fatalf("got %d after %d calls", got, calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 retry sleeps, got %d", len(rec.delays))
	}
}

func TestDoExhaustion(t *testing.T) {
	rec := &recorder{}
	ex := New(fastPolicy(4), WithObserver(rec.observe))

	calls := 0
	_, err := Do(context.Background(), ex, "down", func(context.Context) (string, error) {
		calls++
		return "", errFlaky
	})
	if !errors.Is(err, ErrRemoteCall) {
		t.Fatalf("expected ErrRemoteCall, got %v", err)
	}
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	if len(rec.delays) != 3 {
		t.Fatalf("expected 3 sleeps, got %v", rec.delays)
	}
	for i := 1; i < len(rec.delays); i++ {
		if rec.delays[i] <= rec.delays[i-1] {
			t.Fatalf("delays not strictly increasing: %v", rec.delays)
		}
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	ex := New(fastPolicy(5))
	calls := 0
	_, err := Do(context.Background(), ex, "rejected", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errFlaky)
	})
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if !errors.Is(err, ErrRemoteCall) || !errors.Is(err, errFlaky) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDoOrDefault(t *testing.T) {
	ex := New(fastPolicy(2))
	got := DoOrDefault(context.Background(), ex, "weight", 7, func(context.Context) (int, error) {
		return 0, errFlaky
	})
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	got = DoOrDefault(context.Background(), ex, "weight", 7, func(context.Context) (int, error) {
		return 2400, nil
	})
	if got != 2400 {
		t.Fatalf("expected 2400, got %d", got)
	}
}

func TestDoContextCancelledDuringSleep(t *testing.T) {
	ex := New(Policy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := Do(ctx, ex, "slow", func(context.Context) (int, error) {
		return 0, errFlaky
	})
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancellation did not interrupt the sleep")
	}
	if !errors.Is(err, ErrRemoteCall) || !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := New(Policy{}).Policy()
	if p != DefaultPolicy() {
		t.Fatalf("zero policy normalized to %+v", p)
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
}
