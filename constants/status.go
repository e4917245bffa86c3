package constants

// JobStatus is the canonical lifecycle status for a transcription job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusNotStarted JobStatus = "NOT_STARTED" // created, not yet submitted
	JobStatusQueued     JobStatus = "QUEUED"      // accepted by the provider
	JobStatusProcessing JobStatus = "PROCESSING"  // provider is transcribing
	JobStatusCompleted  JobStatus = "COMPLETED"   // terminal success
	JobStatusFailed     JobStatus = "FAILED"      // terminal failure
	JobStatusCancelled  JobStatus = "CANCELLED"   // terminal, caller-requested
	JobStatusUnknown    JobStatus = "UNKNOWN"     // provider sent a status we do not recognize
)

// IsTerminal reports whether no further transition can occur from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseProviderStatus maps the provider's wire status strings onto the
// canonical enum. Unrecognized values map to JobStatusUnknown rather than
// failing, for forward compatibility with new provider states.
func ParseProviderStatus(s string) JobStatus {
	switch s {
	case "queued":
		return JobStatusQueued
	case "processing":
		return JobStatusProcessing
	case "completed":
		return JobStatusCompleted
	case "error":
		return JobStatusFailed
	default:
		return JobStatusUnknown
	}
}

// IngestionStage identifies the pipeline stage an ingestion item is in.
type IngestionStage string

const (
	StageExtractingAudio IngestionStage = "EXTRACTING_AUDIO"
	StageSubmitting      IngestionStage = "SUBMITTING"
	StagePolling         IngestionStage = "POLLING"
	StageMapping         IngestionStage = "MAPPING"
	StageIndexing        IngestionStage = "INDEXING"
	StagePersisting      IngestionStage = "PERSISTING"
	StageDone            IngestionStage = "DONE"
	StageFailed          IngestionStage = "FAILED"
)
