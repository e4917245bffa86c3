package provider

import (
	"sort"

	"github.com/courtfile/media-ingest/internal/entity"
)

// ToCanonical converts a provider payload into the canonical transcript
// model. Pure and side-effect free: missing optional fields become empty or
// default canonical values, never an error. Millisecond timings pass through
// unchanged.
func ToCanonical(dto *TranscriptResponse) entity.TranscriptionResult {
	if dto == nil {
		return entity.TranscriptionResult{Segments: []entity.TranscriptSegment{}}
	}

	out := entity.TranscriptionResult{
		ID:               dto.ID,
		DetectedLanguage: dto.LanguageCode,
		Error:            dto.Error,
		Segments:         []entity.TranscriptSegment{},
	}
	if dto.Text != nil {
		out.Transcript = *dto.Text
	}
	if dto.PercentComplete != nil {
		pc := *dto.PercentComplete
		out.PercentComplete = &pc
	}
	if dto.AudioDuration != nil {
		out.AudioDurationSec = *dto.AudioDuration
	}

	for _, u := range dto.Utterances {
		seg := entity.TranscriptSegment{
			Text:        u.Text,
			StartTimeMs: u.Start,
			EndTimeMs:   u.End,
			Confidence:  u.Confidence,
			Speaker:     u.Speaker,
		}
		words := u.Words
		if len(words) == 0 {
			words = wordsInSpan(dto.Words, u.Start, u.End)
		}
		for _, w := range words {
			seg.Words = append(seg.Words, entity.Word{
				Text:        w.Text,
				StartTimeMs: w.Start,
				EndTimeMs:   w.End,
				Confidence:  w.Confidence,
			})
		}
		seg.Sentiment = sentimentForSpan(dto.SentimentAnalysisResults, u.Start, u.End)
		out.Segments = append(out.Segments, seg)
	}

	// Ordering by start time is part of the canonical contract; overlap is
	// not, so it is left as the provider delivered it.
	sort.SliceStable(out.Segments, func(i, j int) bool {
		return out.Segments[i].StartTimeMs < out.Segments[j].StartTimeMs
	})
	return out
}

// wordsInSpan selects the top-level words falling inside [start, end].
func wordsInSpan(words []WireWord, start, end int64) []WireWord {
	var out []WireWord
	for _, w := range words {
		if w.Start >= start && w.Start <= end {
			out = append(out, w)
		}
	}
	return out
}

// sentimentForSpan picks the sentiment annotation overlapping the span, if
// any. The first overlapping result wins; segments without an annotation
// keep an empty sentiment.
func sentimentForSpan(results []SentimentResult, start, end int64) string {
	for _, r := range results {
		if r.Start <= end && r.End >= start {
			return r.Sentiment
		}
	}
	return ""
}
