package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
)

// Policy wraps remote calls with retry, exponential backoff with jitter, and
// a circuit breaker. One Policy guards one logical endpoint and is shared by
// every concurrent job calling it; the per-call retry state lives on the
// stack, so nothing leaks between jobs.
type Policy struct {
	maxRetryAttempts int
	baseDelay        time.Duration
	maxDelay         time.Duration
	jitterMax        time.Duration
	breaker          *Breaker
	logger           *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rand  *lockedRand
}

// PolicyConfig configures a Policy; zero values fall back to defaults.
type PolicyConfig struct {
	MaxRetryAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	JitterMax        time.Duration
}

func NewPolicy(cfg PolicyConfig, breaker *Breaker, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.JitterMax < 0 {
		cfg.JitterMax = 0
	}
	return &Policy{
		maxRetryAttempts: cfg.MaxRetryAttempts,
		baseDelay:        cfg.BaseDelay,
		maxDelay:         cfg.MaxDelay,
		jitterMax:        cfg.JitterMax,
		breaker:          breaker,
		logger:           logger,
		sleep:            sleepCtx,
		rand:             newLockedRand(),
	}
}

// Breaker exposes the policy's circuit breaker.
func (p *Policy) Breaker() *Breaker { return p.breaker }

// Execute runs op through the policy: the breaker is consulted before every
// attempt, retryable failures are retried up to MaxRetryAttempts times with
// backoff, and exhaustion surfaces as common.ErrTransientExhausted wrapping
// the last error.
func Execute[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return ExecuteNotify(ctx, p, op, nil)
}

// ExecuteNotify is Execute with a per-call retry callback, used by callers
// that track consumed retries (the callback runs before each re-attempt).
func ExecuteNotify[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error), onRetry func(attempt int, err error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.maxRetryAttempts+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if p.breaker != nil && !p.breaker.Allow() {
			return zero, common.ErrCircuitOpen
		}

		out, err := op(ctx)
		if err == nil {
			if p.breaker != nil {
				p.breaker.RecordSuccess()
			}
			return out, nil
		}
		if p.breaker != nil {
			p.breaker.RecordFailure()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if !Retryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt == p.maxRetryAttempts+1 {
			break
		}

		delay := p.backoff(attempt)
		p.logger.Warn("resilience.retry",
			"attempt", attempt,
			"max_attempts", p.maxRetryAttempts+1,
			"delay", delay.String(),
			"error", err,
		)
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	p.logger.Error("resilience.exhausted", "attempts", p.maxRetryAttempts+1, "error", lastErr)
	return zero, common.NewAppError("TRANSIENT_EXHAUSTED", lastErr.Error(), common.ErrTransientExhausted)
}

// backoff computes the delay for 1-indexed attempt k:
// min(maxDelay, base * 2^k) + uniform(0, jitterMax).
func (p *Policy) backoff(attempt int) time.Duration {
	d := p.baseDelay << uint(attempt)
	if d > p.maxDelay || d <= 0 {
		d = p.maxDelay
	}
	if p.jitterMax > 0 {
		d += time.Duration(p.rand.Int63n(int64(p.jitterMax)))
	}
	return d
}

// Retryable classifies an error as a transient transport failure: retryable
// HTTP statuses (5xx, 408, 429) and connection-level errors. Permanent 4xx
// responses and application-level failures are not retryable.
func Retryable(err error) bool {
	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) {
		return common.IsRetryableStatus(httpErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
