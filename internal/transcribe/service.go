package transcribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtfile/media-ingest/constants"
	"github.com/courtfile/media-ingest/internal/entity"
	"github.com/courtfile/media-ingest/internal/jobs"
	"github.com/courtfile/media-ingest/internal/provider"
)

// Request asks for one media item's audio to be transcribed.
type Request struct {
	MediaID   string
	AudioURL  string // where the provider fetches the audio
	AudioPath string // local extracted audio, used by enrichment passes
}

// Result carries the terminal job and, when the job completed, the canonical
// transcript.
type Result struct {
	Job        entity.TranscriptionJob
	Transcript *entity.TranscriptionResult
}

// Service is the transcription contract consumed by the orchestrator. The
// base implementation talks to the remote provider; decorators wrap it to
// enrich the result without changing the contract.
type Service interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// SubmitAPI is the slice of the provider client the base service submits
// through.
type SubmitAPI interface {
	Submit(ctx context.Context, req provider.SubmitRequest) (string, error)
}

// Options are the provider-side transcription settings applied to every
// submission.
type Options struct {
	LanguageCode      string
	SpeakerLabels     bool
	SentimentAnalysis bool
	Punctuate         bool
	FormatText        bool
}

// service is the base implementation: submit, track to terminal state, map.
type service struct {
	submit  SubmitAPI
	tracker *jobs.Tracker
	opts    Options
	logger  *slog.Logger
}

func NewService(submit SubmitAPI, tracker *jobs.Tracker, opts Options, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = "en"
	}
	return &service{submit: submit, tracker: tracker, opts: opts, logger: logger}
}

// Transcribe submits the audio and drives the job to a terminal state.
// Submission rejections and caller cancellation return an error; every other
// failure mode is expressed through the returned job's status and LastError.
func (s *service) Transcribe(ctx context.Context, req Request) (*Result, error) {
	job := entity.TranscriptionJob{
		ID:             uuid.New().String(),
		SourceFilePath: req.AudioPath,
		AudioURL:       req.AudioURL,
		Status:         constants.JobStatusNotStarted,
	}

	remoteID, err := s.submit.Submit(ctx, provider.SubmitRequest{
		AudioURL:          req.AudioURL,
		LanguageCode:      s.opts.LanguageCode,
		SpeakerLabels:     s.opts.SpeakerLabels,
		SentimentAnalysis: s.opts.SentimentAnalysis,
		Punctuate:         s.opts.Punctuate,
		FormatText:        s.opts.FormatText,
	})
	if err != nil {
		return nil, err
	}
	job.RemoteID = remoteID
	now := time.Now()
	job.SubmittedAt = &now
	s.logger.Info("transcribe.submitted", "job_id", job.ID, "remote_id", remoteID, "media_id", req.MediaID)

	dto, err := s.tracker.Track(ctx, &job)
	if err != nil {
		return &Result{Job: job}, err
	}

	res := &Result{Job: job}
	if job.Status == constants.JobStatusCompleted && dto != nil {
		mapped := provider.ToCanonical(dto)
		res.Transcript = &mapped
	}
	return res, nil
}
