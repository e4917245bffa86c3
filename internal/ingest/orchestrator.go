package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/courtfile/media-ingest/constants"
	"github.com/courtfile/media-ingest/internal/entity"
	"github.com/courtfile/media-ingest/internal/index"
	"github.com/courtfile/media-ingest/internal/repository"
	"github.com/courtfile/media-ingest/internal/transcribe"
)

// AudioExtractor is the audio-extraction capability (ffmpeg behind it).
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, sourcePath string) (string, error)
}

// AudioPublisher turns a local audio file into a URL the transcription
// provider can fetch.
type AudioPublisher interface {
	Upload(ctx context.Context, audioPath string) (string, error)
}

// TopicExtractor derives topics from a transcript; best effort.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, transcript string) ([]string, error)
}

// Progress is the ephemeral per-item progress snapshot emitted to observers.
type Progress struct {
	MediaID            string
	Stage              constants.IngestionStage
	ProgressPercentage int
	Errors             []string
}

// OutcomeStatus classifies a finished ingestion.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "SUCCEEDED"
	OutcomePartial   OutcomeStatus = "PARTIAL" // transcript obtained, a later stage failed
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeCancelled OutcomeStatus = "CANCELLED"
)

// Outcome is the final report for one media item: the stage reached, the
// classification, and whatever artifacts were produced before any failure.
type Outcome struct {
	MediaID    string
	SourcePath string
	Status     OutcomeStatus
	Stage      constants.IngestionStage
	AudioPath  string
	Transcript *entity.TranscriptionResult
	Topics     []string
	JobStatus  constants.JobStatus
	Errors     []string
}

// Failed reports whether the pipeline produced no usable transcript.
func (o *Outcome) Failed() bool {
	return o.Status == OutcomeFailed || o.Status == OutcomeCancelled
}

// Orchestrator sequences audio extraction, transcription, topic extraction,
// indexing and persistence for one media item, with partial-failure
// bookkeeping: a stage failure never discards artifacts produced by the
// stages before it.
type Orchestrator struct {
	extractor   AudioExtractor
	publisher   AudioPublisher
	svc         transcribe.Service
	topics      TopicExtractor // optional
	indexer     index.Indexer
	mediaRepo   repository.MediaRepository
	transcripts repository.TranscriptRepository
	logger      *slog.Logger

	indexRetries    int
	indexRetryDelay time.Duration
	onProgress      func(Progress)
	sleep           func(ctx context.Context, d time.Duration) error
}

// OrchestratorConfig bundles tuning knobs and the optional progress observer.
type OrchestratorConfig struct {
	IndexRetries    int
	IndexRetryDelay time.Duration
	OnProgress      func(Progress)
}

func NewOrchestrator(
	extractor AudioExtractor,
	publisher AudioPublisher,
	svc transcribe.Service,
	topicExtractor TopicExtractor,
	indexer index.Indexer,
	mediaRepo repository.MediaRepository,
	transcripts repository.TranscriptRepository,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IndexRetries < 0 {
		cfg.IndexRetries = 0
	}
	if cfg.IndexRetryDelay <= 0 {
		cfg.IndexRetryDelay = 2 * time.Second
	}
	return &Orchestrator{
		extractor:       extractor,
		publisher:       publisher,
		svc:             svc,
		topics:          topicExtractor,
		indexer:         indexer,
		mediaRepo:       mediaRepo,
		transcripts:     transcripts,
		logger:          logger,
		indexRetries:    cfg.IndexRetries,
		indexRetryDelay: cfg.IndexRetryDelay,
		onProgress:      cfg.OnProgress,
		sleep:           sleepCtx,
	}
}

// ProcessMedia runs the full pipeline for one file. It always returns a
// final Outcome; errors inside stages are folded into it rather than
// escaping, and cancellation yields a CANCELLED outcome.
func (o *Orchestrator) ProcessMedia(ctx context.Context, sourcePath string) *Outcome {
	out := &Outcome{
		SourcePath: sourcePath,
		Status:     OutcomeFailed,
		Stage:      constants.StageExtractingAudio,
	}
	progress := &Progress{}

	title := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	item, err := o.mediaRepo.UpsertFromPath(ctx, sourcePath, title)
	if err != nil {
		if cancelled(ctx, err) {
			out.Status = OutcomeCancelled
			o.recordError(out, progress, "ingestion cancelled")
			return o.finish(out, progress)
		}
		o.recordError(out, progress, fmt.Sprintf("register media: %v", err))
		return o.finish(out, progress)
	}
	out.MediaID = item.ID
	progress.MediaID = item.ID

	// Stage 1: audio extraction. Fatal on failure, nothing downstream can run.
	o.advance(out, progress, constants.StageExtractingAudio, 10)
	audioPath, err := o.extractor.ExtractAudio(ctx, sourcePath)
	if err != nil {
		if cancelled(ctx, err) {
			out.Status = OutcomeCancelled
			o.recordError(out, progress, "ingestion cancelled")
			return o.finish(out, progress)
		}
		o.recordError(out, progress, fmt.Sprintf("extract audio: %v", err))
		return o.finish(out, progress)
	}
	out.AudioPath = audioPath

	// Stage 2: submit and poll to a terminal state.
	o.advance(out, progress, constants.StageSubmitting, 25)
	audioURL, err := o.publisher.Upload(ctx, audioPath)
	if err != nil {
		if cancelled(ctx, err) {
			out.Status = OutcomeCancelled
			o.recordError(out, progress, "ingestion cancelled")
			return o.finish(out, progress)
		}
		o.recordError(out, progress, fmt.Sprintf("publish audio: %v", err))
		return o.finish(out, progress)
	}

	o.advance(out, progress, constants.StagePolling, 40)
	res, err := o.svc.Transcribe(ctx, transcribe.Request{
		MediaID:   item.ID,
		AudioURL:  audioURL,
		AudioPath: audioPath,
	})
	if res != nil {
		out.JobStatus = res.Job.Status
		if rerr := o.transcripts.RecordJob(context.WithoutCancel(ctx), item.ID, &res.Job); rerr != nil {
			o.logger.Warn("orchestrator.job_record_failed", "media_id", item.ID, "error", rerr)
		}
	}
	if err != nil {
		if cancelled(ctx, err) {
			out.Status = OutcomeCancelled
			o.recordError(out, progress, "ingestion cancelled")
			return o.finish(out, progress)
		}
		o.recordError(out, progress, fmt.Sprintf("transcribe: %v", err))
		return o.finish(out, progress)
	}

	switch res.Job.Status {
	case constants.JobStatusCompleted:
		// fall through to mapping
	case constants.JobStatusCancelled:
		out.Status = OutcomeCancelled
		o.recordError(out, progress, "transcription cancelled")
		return o.finish(out, progress)
	default:
		o.recordError(out, progress, fmt.Sprintf("transcription failed: %s", res.Job.LastError))
		return o.finish(out, progress)
	}

	// Stage 3: mapping already happened inside the service; validate here.
	o.advance(out, progress, constants.StageMapping, 60)
	if res.Transcript == nil {
		o.recordError(out, progress, "completed job produced no transcript")
		return o.finish(out, progress)
	}
	out.Transcript = res.Transcript

	// A transcript exists from here on: later failures downgrade to PARTIAL,
	// never to FAILED.
	out.Status = OutcomeSucceeded

	// Stage 4: topic extraction, best effort.
	if o.topics != nil {
		if topics, terr := o.topics.ExtractTopics(ctx, res.Transcript.Transcript); terr != nil {
			o.logger.Warn("orchestrator.topics_failed", "media_id", item.ID, "error", terr)
			progress.Errors = append(progress.Errors, fmt.Sprintf("extract topics: %v", terr))
			out.Errors = append(out.Errors, fmt.Sprintf("extract topics: %v", terr))
		} else {
			out.Topics = topics
		}
	}

	// Stage 5: indexing with bounded orchestrator-level retry.
	o.advance(out, progress, constants.StageIndexing, 75)
	if err := o.indexWithRetry(ctx, index.Document{
		MediaID:    item.ID,
		Title:      item.Title,
		Transcript: res.Transcript.Transcript,
		Segments:   res.Transcript.Segments,
		Topics:     out.Topics,
	}); err != nil {
		out.Status = OutcomePartial
		o.recordError(out, progress, fmt.Sprintf("index: %v", err))
	}

	// Stage 6: persist transcript and, when indexed, the media metadata.
	o.advance(out, progress, constants.StagePersisting, 90)
	if err := o.transcripts.SaveTranscript(ctx, item.ID, res.Transcript); err != nil {
		out.Status = OutcomePartial
		o.recordError(out, progress, fmt.Sprintf("persist transcript: %v", err))
	}
	if out.Status != OutcomePartial || !containsPrefix(out.Errors, "index:") {
		if err := o.mediaRepo.MarkIndexed(ctx, item.ID, time.Now().UTC()); err != nil {
			out.Status = OutcomePartial
			o.recordError(out, progress, fmt.Sprintf("mark indexed: %v", err))
		}
	}

	return o.finish(out, progress)
}

// indexWithRetry retries indexing a bounded number of times. This retry is
// deliberately simpler than the transport resilience policy: fixed delay,
// fixed attempt count, no breaker.
func (o *Orchestrator) indexWithRetry(ctx context.Context, doc index.Document) error {
	var lastErr error
	for attempt := 0; attempt <= o.indexRetries; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, o.indexRetryDelay); err != nil {
				return lastErr
			}
		}
		if lastErr = o.indexer.Index(ctx, doc); lastErr == nil {
			return nil
		}
		o.logger.Warn("orchestrator.index_retry",
			"media_id", doc.MediaID, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (o *Orchestrator) advance(out *Outcome, p *Progress, stage constants.IngestionStage, pct int) {
	out.Stage = stage
	p.Stage = stage
	p.ProgressPercentage = pct
	o.emit(p)
	o.logger.Debug("orchestrator.stage", "media_id", p.MediaID, "stage", string(stage), "pct", pct)
}

func (o *Orchestrator) recordError(out *Outcome, p *Progress, msg string) {
	out.Errors = append(out.Errors, msg)
	p.Errors = append(p.Errors, msg)
	o.logger.Error("orchestrator.stage_failed", "media_id", out.MediaID, "stage", string(out.Stage), "error", msg)
}

func (o *Orchestrator) finish(out *Outcome, p *Progress) *Outcome {
	if out.Failed() {
		p.Stage = constants.StageFailed
		out.Stage = firstNonEmptyStage(out.Stage)
	} else {
		p.Stage = constants.StageDone
		out.Stage = constants.StageDone
		p.ProgressPercentage = 100
	}
	o.emit(p)
	o.logger.Info("orchestrator.done",
		"media_id", out.MediaID,
		"status", string(out.Status),
		"stage", string(out.Stage),
		"errors", len(out.Errors),
	)
	return out
}

func (o *Orchestrator) emit(p *Progress) {
	if o.onProgress == nil {
		return
	}
	snapshot := *p
	snapshot.Errors = append([]string(nil), p.Errors...)
	o.onProgress(snapshot)
}

func firstNonEmptyStage(s constants.IngestionStage) constants.IngestionStage {
	if s == "" {
		return constants.StageFailed
	}
	return s
}

// cancelled reports whether a stage failure was really the caller giving up.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func containsPrefix(errs []string, prefix string) bool {
	for _, e := range errs {
		if strings.HasPrefix(e, prefix) {
			return true
		}
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
