package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/entity"
)

// TranscriptRepository persists canonical transcripts and job audit rows.
type TranscriptRepository interface {
	SaveTranscript(ctx context.Context, mediaID string, tr *entity.TranscriptionResult) error
	LoadTranscript(ctx context.Context, mediaID string) (*entity.TranscriptionResult, error)
	RecordJob(ctx context.Context, mediaID string, job *entity.TranscriptionJob) error
}

type transcriptRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewTranscriptRepository(db *sql.DB, log *slog.Logger) TranscriptRepository {
	if log == nil {
		log = slog.Default()
	}
	return &transcriptRepo{db: db, log: log}
}

// SaveTranscript stores the transcript; the full canonical model rides along
// as a JSON payload so segments and enrichment survive round trips.
func (r *transcriptRepo) SaveTranscript(ctx context.Context, mediaID string, tr *entity.TranscriptionResult) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transcripts (media_id, remote_id, language, full_text, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			language = excluded.language,
			full_text = excluded.full_text,
			payload = excluded.payload`,
		mediaID, tr.ID, tr.DetectedLanguage, tr.Transcript, string(payload), time.Now().UTC(),
	)
	if err != nil {
		r.log.Error("transcript save failed", "media_id", mediaID, "err", err)
		return fmt.Errorf("save transcript: %w", err)
	}
	r.log.Info("transcript saved", "media_id", mediaID, "segments", len(tr.Segments))
	return nil
}

func (r *transcriptRepo) LoadTranscript(ctx context.Context, mediaID string) (*entity.TranscriptionResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM transcripts WHERE media_id = ?`, mediaID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	var tr entity.TranscriptionResult
	if err := json.Unmarshal([]byte(payload), &tr); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &tr, nil
}

// RecordJob appends the terminal job state for audit.
func (r *transcriptRepo) RecordJob(ctx context.Context, mediaID string, job *entity.TranscriptionJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transcription_jobs (id, media_id, remote_id, status, submitted_at, completed_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error`,
		job.ID, mediaID, job.RemoteID, string(job.Status), job.SubmittedAt, job.CompletedAt, job.RetryCount, job.LastError,
	)
	if err != nil {
		r.log.Error("job record failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("record job: %w", err)
	}
	r.log.Info("job recorded", "job_id", job.ID, "media_id", mediaID, "status", string(job.Status))
	return nil
}
