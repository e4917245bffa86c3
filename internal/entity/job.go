package entity

import (
	"time"

	"github.com/courtfile/media-ingest/constants"
)

// TranscriptionJob is one remote unit of work and its lifecycle.
// ID is the local correlation id assigned before submission; RemoteID is
// assigned by the provider and stays empty until submission succeeds.
type TranscriptionJob struct {
	ID             string              `json:"id"`
	RemoteID       string              `json:"remote_id,omitempty"`
	SourceFilePath string              `json:"source_file_path"`
	AudioURL       string              `json:"audio_url"`
	Status         constants.JobStatus `json:"status"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	RetryCount     int                 `json:"retry_count"`
	LastError      string              `json:"last_error,omitempty"`
}

// MediaItem is a media file tracked by the archive store.
type MediaItem struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"source_path"`
	Title      string     `json:"title"`
	Indexed    bool       `json:"indexed"`
	IndexedAt  *time.Time `json:"indexed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
