package provider

// Wire DTOs for the remote transcription API. Field names are the provider's
// contract and must not drift.

// SubmitRequest creates a remote transcription job.
type SubmitRequest struct {
	AudioURL              string `json:"audio_url"`
	LanguageCode          string `json:"language_code,omitempty"`
	SpeakerLabels         bool   `json:"speaker_labels,omitempty"`
	SentimentAnalysis     bool   `json:"sentiment_analysis,omitempty"`
	Punctuate             bool   `json:"punctuate,omitempty"`
	FormatText            bool   `json:"format_text,omitempty"`
	WebhookURL            string `json:"webhook_url,omitempty"`
	WebhookAuthHeaderName string `json:"webhook_auth_header_name,omitempty"`
	WebhookAuthHeaderVal  string `json:"webhook_auth_header_value,omitempty"`
}

// TranscriptResponse is the provider's status/result payload. Optional fields
// are pointers; the provider omits or nulls them until the job completes.
// All start/end values are milliseconds.
type TranscriptResponse struct {
	ID                       string            `json:"id"`
	Status                   string            `json:"status"`
	AudioURL                 string            `json:"audio_url,omitempty"`
	Text                     *string           `json:"text,omitempty"`
	Confidence               *float64          `json:"confidence,omitempty"`
	LanguageCode             string            `json:"language_code,omitempty"`
	AudioDuration            *float64          `json:"audio_duration,omitempty"`
	Utterances               []Utterance       `json:"utterances,omitempty"`
	Words                    []WireWord        `json:"words,omitempty"`
	SentimentAnalysisResults []SentimentResult `json:"sentiment_analysis_results,omitempty"`
	Error                    string            `json:"error,omitempty"`
	Created                  string            `json:"created,omitempty"`
	Completed                string            `json:"completed,omitempty"`
	PercentComplete          *int              `json:"percent_complete,omitempty"`
}

// Utterance is one speaker turn.
type Utterance struct {
	Start      int64      `json:"start"`
	End        int64      `json:"end"`
	Speaker    string     `json:"speaker,omitempty"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Words      []WireWord `json:"words,omitempty"`
}

// WireWord is a single recognized word.
type WireWord struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SentimentResult annotates a span of the transcript with a sentiment label.
type SentimentResult struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}
