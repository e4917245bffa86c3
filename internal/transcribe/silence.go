package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/courtfile/media-ingest/constants"
	"github.com/courtfile/media-ingest/internal/entity"
)

// SilenceAnalyzer computes timed silence intervals for a local audio file.
type SilenceAnalyzer interface {
	AnalyzeSilence(ctx context.Context, audioPath string) ([]entity.SilenceInterval, error)
}

// silenceDecorator implements the same Service contract as the base service
// and augments completed transcripts with silence intervals computed by an
// independent analysis pass. Enrichment failures are recorded as warnings on
// the result; a successful transcription is never downgraded by them.
type silenceDecorator struct {
	base     Service
	analyzer SilenceAnalyzer
	logger   *slog.Logger
}

func WithSilenceDetection(base Service, analyzer SilenceAnalyzer, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &silenceDecorator{base: base, analyzer: analyzer, logger: logger}
}

func (d *silenceDecorator) Transcribe(ctx context.Context, req Request) (*Result, error) {
	res, err := d.base.Transcribe(ctx, req)
	if err != nil || res == nil || res.Transcript == nil {
		return res, err
	}
	if res.Job.Status != constants.JobStatusCompleted {
		return res, nil
	}

	intervals, aerr := d.analyzer.AnalyzeSilence(ctx, req.AudioPath)
	if aerr != nil {
		warning := fmt.Sprintf("silence analysis failed: %v", aerr)
		res.Transcript.Warnings = append(res.Transcript.Warnings, warning)
		d.logger.Warn("transcribe.silence.failed", "job_id", res.Job.ID, "error", aerr)
		return res, nil
	}

	res.Transcript.SilenceIntervals = intervals
	d.logger.Info("transcribe.silence.ok", "job_id", res.Job.ID, "intervals", len(intervals))
	return res, nil
}
