package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtfile/media-ingest/constants"
	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/entity"
	"github.com/courtfile/media-ingest/internal/provider"
)

// StatusAPI is the slice of the provider client the tracker drives. Polling
// goes through the notify variant so the tracker can account the resilience
// retries each poll consumed.
type StatusAPI interface {
	GetStatusNotify(ctx context.Context, remoteID string, onRetry func(attempt int, err error)) (*provider.TranscriptResponse, error)
	Cancel(ctx context.Context, remoteID string) (bool, error)
}

// Tracker owns the lifecycle of one submitted transcription job: it polls the
// provider on a fixed interval, applies legal state transitions, and stops on
// the first terminal state. Remote failures that the resilience layer could
// not absorb move the job to FAILED rather than escaping as errors; only
// caller cancellation propagates, as a context error.
type Tracker struct {
	api          StatusAPI
	pollInterval time.Duration
	maxWait      time.Duration // 0 means no overall deadline
	logger       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// TrackerConfig configures a Tracker; zero values fall back to defaults.
type TrackerConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

func NewTracker(api StatusAPI, cfg TrackerConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Tracker{
		api:          api,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		logger:       logger,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// Track polls job until it reaches a terminal state and returns the last
// provider payload seen. The returned error is non-nil only when ctx was
// cancelled; every other outcome is expressed through job.Status.
func (t *Tracker) Track(ctx context.Context, job *entity.TranscriptionJob) (*provider.TranscriptResponse, error) {
	if job.RemoteID == "" {
		t.fail(job, "job has no remote id; was it submitted?")
		return nil, nil
	}

	start := t.now()
	var last *provider.TranscriptResponse

	for !job.Status.IsTerminal() {
		if err := ctx.Err(); err != nil {
			t.cancelRemote(job)
			return last, err
		}
		if t.maxWait > 0 && t.now().Sub(start) > t.maxWait {
			t.cancelRemote(job)
			t.fail(job, fmt.Sprintf("%v after %s", common.ErrJobTimeout, t.maxWait))
			return last, nil
		}

		// RetryCount tracks the retries consumed by the current remote call.
		job.RetryCount = 0
		dto, err := t.api.GetStatusNotify(ctx, job.RemoteID, func(attempt int, _ error) {
			job.RetryCount = attempt
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				t.cancelRemote(job)
				return last, err
			}
			// Circuit open or retries exhausted: terminal for this job.
			t.fail(job, err.Error())
			return last, nil
		}
		last = dto
		t.apply(job, dto)

		if job.Status.IsTerminal() {
			break
		}
		if err := t.sleep(ctx, t.pollInterval); err != nil {
			t.cancelRemote(job)
			return last, err
		}
	}
	return last, nil
}

// apply maps the provider status onto the job, honoring the legal edges of
// the state machine. Unknown or backwards statuses leave the job where it is
// and polling continues.
func (t *Tracker) apply(job *entity.TranscriptionJob, dto *provider.TranscriptResponse) {
	next := constants.ParseProviderStatus(dto.Status)
	if next == constants.JobStatusUnknown {
		t.logger.Warn("tracker.unknown_status", "job_id", job.ID, "provider_status", dto.Status)
		return
	}
	if !isValidTransition(job.Status, next) {
		if next != job.Status {
			t.logger.Warn("tracker.ignored_transition",
				"job_id", job.ID, "from", string(job.Status), "to", string(next))
		}
		return
	}

	job.Status = next
	switch next {
	case constants.JobStatusCompleted:
		now := t.now()
		job.CompletedAt = &now
		t.logger.Info("tracker.completed", "job_id", job.ID, "remote_id", job.RemoteID)
	case constants.JobStatusFailed:
		now := t.now()
		job.CompletedAt = &now
		job.LastError = dto.Error
		t.logger.Warn("tracker.provider_failed", "job_id", job.ID, "error", dto.Error)
	default:
		t.logger.Debug("tracker.transition", "job_id", job.ID, "status", string(next))
	}
}

// cancelRemote marks the job cancelled and issues one best-effort remote
// cancel on a fresh context, since the caller's is already done.
func (t *Tracker) cancelRemote(job *entity.TranscriptionJob) {
	if job.Status.IsTerminal() {
		return
	}
	job.Status = constants.JobStatusCancelled
	now := t.now()
	job.CompletedAt = &now

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := t.api.Cancel(cctx, job.RemoteID)
	if err != nil {
		t.logger.Warn("tracker.remote_cancel_failed", "job_id", job.ID, "error", err)
		return
	}
	t.logger.Info("tracker.cancelled", "job_id", job.ID, "remote_acknowledged", ok)
}

func (t *Tracker) fail(job *entity.TranscriptionJob, reason string) {
	job.Status = constants.JobStatusFailed
	job.LastError = reason
	now := t.now()
	job.CompletedAt = &now
	t.logger.Error("tracker.failed", "job_id", job.ID, "error", reason)
}

// isValidTransition enforces the allowed job state machine edges. Status is
// monotonic; cancellation is handled separately and terminal states admit
// no transition at all.
func isValidTransition(from, to constants.JobStatus) bool {
	switch from {
	case constants.JobStatusNotStarted:
		return to == constants.JobStatusQueued || to == constants.JobStatusProcessing ||
			to == constants.JobStatusCompleted || to == constants.JobStatusFailed
	case constants.JobStatusQueued:
		return to == constants.JobStatusProcessing || to == constants.JobStatusCompleted ||
			to == constants.JobStatusFailed
	case constants.JobStatusProcessing:
		return to == constants.JobStatusCompleted || to == constants.JobStatusFailed
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
