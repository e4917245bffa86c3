package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current mode.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Breaker is a circuit breaker shared by every job calling one logical
// endpoint. It counts consecutive failures: any success resets the count,
// and a failure arriving more than SamplingWindow after the previous one
// restarts the count at 1. On reaching FailureThreshold the breaker opens
// and rejects calls until OpenDuration elapses, after which exactly one
// trial call is allowed (half-open); its outcome closes or re-opens the
// breaker. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	samplingWindow   time.Duration
	logger           *slog.Logger

	state       BreakerState
	consecutive int
	lastFailure time.Time
	openedAt    time.Time
	now         func() time.Time
}

// BreakerConfig configures a Breaker; zero values fall back to defaults.
type BreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
	SamplingWindow   time.Duration
}

func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	if cfg.SamplingWindow <= 0 {
		cfg.SamplingWindow = time.Minute
	}
	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		openDuration:     cfg.OpenDuration,
		samplingWindow:   cfg.SamplingWindow,
		logger:           logger,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has elapsed it moves to half-open and admits exactly one trial;
// concurrent callers during the trial are rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.openDuration {
			b.state = BreakerHalfOpen
			b.logger.Info("breaker.half_open", "open_for", b.now().Sub(b.openedAt).String())
			return true
		}
		return false
	case BreakerHalfOpen:
		// A trial call is already in flight.
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerClosed {
		b.logger.Info("breaker.closed", "previous_state", string(b.state))
	}
	b.state = BreakerClosed
	b.consecutive = 0
}

// RecordFailure counts a failure and opens the breaker at the threshold.
// A half-open trial failure re-opens immediately and restarts the timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.lastFailure = now
		b.logger.Warn("breaker.reopened")
		return
	}

	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.samplingWindow {
		b.consecutive = 0
	}
	b.consecutive++
	b.lastFailure = now

	if b.state == BreakerClosed && b.consecutive >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = now
		b.logger.Warn("breaker.opened", "consecutive_failures", b.consecutive)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
