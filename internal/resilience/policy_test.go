package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
)

func newTestPolicy(cfg PolicyConfig, b *Breaker) *Policy {
	p := NewPolicy(cfg, b, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

// TestExecuteRetriesUntilExhausted verifies the 1 + MaxRetryAttempts budget.
func TestExecuteRetriesUntilExhausted(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 3}, nil)

	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		return "", &common.HTTPError{StatusCode: 503}
	})

	if calls != 4 {
		t.Fatalf("calls = %d, want 4 (1 initial + 3 retries)", calls)
	}
	if !errors.Is(err, common.ErrTransientExhausted) {
		t.Fatalf("error = %v, want ErrTransientExhausted", err)
	}
}

// TestExecuteSucceedsAfterTransientFailures checks recovery mid-budget.
func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 3}, nil)

	calls := 0
	out, err := Execute(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &common.HTTPError{StatusCode: 500}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out = %q calls = %d, want ok after 3 calls", out, calls)
	}
}

// TestExecuteDoesNotRetryPermanentErrors covers 4xx other than 408/429.
func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 3}, nil)
		calls := 0
		_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			return 0, &common.HTTPError{StatusCode: status}
		})
		if calls != 1 {
			t.Fatalf("status %d: calls = %d, want 1", status, calls)
		}
		var httpErr *common.HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("status %d: error = %v, want HTTPError", status, err)
		}
	}
}

// TestExecuteRetriesRateLimitAndTimeout covers 429 and 408.
func TestExecuteRetriesRateLimitAndTimeout(t *testing.T) {
	for _, status := range []int{408, 429} {
		p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 1}, nil)
		calls := 0
		_, _ = Execute(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			return 0, &common.HTTPError{StatusCode: status}
		})
		if calls != 2 {
			t.Fatalf("status %d: calls = %d, want 2", status, calls)
		}
	}
}

// TestExecuteNotifyReportsRetries verifies the per-call retry callback.
func TestExecuteNotifyReportsRetries(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 2}, nil)

	var attempts []int
	_, _ = ExecuteNotify(context.Background(), p,
		func(ctx context.Context) (int, error) {
			return 0, &common.HTTPError{StatusCode: 502}
		},
		func(attempt int, err error) {
			attempts = append(attempts, attempt)
		},
	)
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("retry attempts = %v, want [1 2]", attempts)
	}
}

// TestExecuteStopsOnContextCancel makes sure cancellation is not converted
// into a retry or an exhaustion error.
func TestExecuteStopsOnContextCancel(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 5}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Execute(ctx, p, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, &common.HTTPError{StatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

// TestBackoffGrowsAndCaps checks min(maxDelay, base*2^k) without jitter.
func TestBackoffGrowsAndCaps(t *testing.T) {
	p := NewPolicy(PolicyConfig{
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		JitterMax: -1, // normalized to 0
	}, nil, nil)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

// TestBackoffJitterBounded verifies jitter stays within [0, jitterMax).
func TestBackoffJitterBounded(t *testing.T) {
	jitter := 500 * time.Millisecond
	p := NewPolicy(PolicyConfig{
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		JitterMax: jitter,
	}, nil, nil)

	base := 2 * time.Second
	for i := 0; i < 100; i++ {
		d := p.backoff(1)
		if d < base || d >= base+jitter {
			t.Fatalf("backoff(1) = %v, want in [%v, %v)", d, base, base+jitter)
		}
	}
}

// TestExecuteFailsFastWhenBreakerOpen verifies the op is never invoked while
// the breaker rejects calls.
func TestExecuteFailsFastWhenBreakerOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1}, nil)
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("breaker state = %s, want open", b.State())
	}

	p := newTestPolicy(PolicyConfig{MaxRetryAttempts: 3}, b)
	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, common.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}
