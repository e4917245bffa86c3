package entity

// TranscriptionResult is the canonical, provider-agnostic transcript shared
// by every downstream consumer (indexing, persistence, export).
type TranscriptionResult struct {
	ID               string              `json:"id"`
	Transcript       string              `json:"transcript"`
	DetectedLanguage string              `json:"detected_language"`
	PercentComplete  *int                `json:"percent_complete,omitempty"`
	AudioDurationSec float64             `json:"audio_duration_sec"`
	Error            string              `json:"error,omitempty"`
	Segments         []TranscriptSegment `json:"segments"`
	SilenceIntervals []SilenceInterval   `json:"silence_intervals,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// TranscriptSegment is one utterance-sized slice of the transcript.
// Start/End are milliseconds from the beginning of the audio. Segments are
// ordered by StartTimeMs but the provider does not guarantee no overlap.
type TranscriptSegment struct {
	Text        string  `json:"text"`
	StartTimeMs int64   `json:"start_time_ms"`
	EndTimeMs   int64   `json:"end_time_ms"`
	Confidence  float64 `json:"confidence"`
	Speaker     string  `json:"speaker,omitempty"`
	Sentiment   string  `json:"sentiment,omitempty"`
	Words       []Word  `json:"words,omitempty"`
}

// Word is a single recognized word with millisecond timing.
type Word struct {
	Text        string  `json:"text"`
	StartTimeMs int64   `json:"start_time_ms"`
	EndTimeMs   int64   `json:"end_time_ms"`
	Confidence  float64 `json:"confidence"`
}

// SilenceInterval marks a stretch of audio with no detected speech,
// produced by the independent silence-analysis pass.
type SilenceInterval struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}
