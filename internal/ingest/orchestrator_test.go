package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courtfile/media-ingest/constants"
	"github.com/courtfile/media-ingest/internal/entity"
	"github.com/courtfile/media-ingest/internal/index"
	"github.com/courtfile/media-ingest/internal/transcribe"
)

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/out/audio.wav", nil
}

type fakePublisher struct {
	err error
}

func (f *fakePublisher) Upload(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.provider/u-1", nil
}

type fakeService struct {
	result *transcribe.Result
	err    error
}

func (f *fakeService) Transcribe(_ context.Context, _ transcribe.Request) (*transcribe.Result, error) {
	return f.result, f.err
}

type fakeTopics struct {
	topics []string
	err    error
}

func (f *fakeTopics) ExtractTopics(_ context.Context, _ string) ([]string, error) {
	return f.topics, f.err
}

type fakeIndexer struct {
	failFirst int // fail this many calls before succeeding
	alwaysErr error
	calls     int
	last      index.Document
}

func (f *fakeIndexer) Index(_ context.Context, doc index.Document) error {
	f.calls++
	f.last = doc
	if f.alwaysErr != nil {
		return f.alwaysErr
	}
	if f.calls <= f.failFirst {
		return errors.New("index backend unavailable")
	}
	return nil
}

type fakeMediaRepo struct {
	upsertErr error
	markErr   error
	marked    []string
	markedAt  time.Time
	upserts   int
}

func (f *fakeMediaRepo) UpsertFromPath(_ context.Context, sourcePath, title string) (*entity.MediaItem, error) {
	f.upserts++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return &entity.MediaItem{ID: "media-1", SourcePath: sourcePath, Title: title}, nil
}

func (f *fakeMediaRepo) GetByID(_ context.Context, id string) (*entity.MediaItem, error) {
	return &entity.MediaItem{ID: id}, nil
}

func (f *fakeMediaRepo) MarkIndexed(_ context.Context, id string, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	f.markedAt = at
	return nil
}

type fakeTranscriptRepo struct {
	saveErr    error
	saved      map[string]*entity.TranscriptionResult
	jobs       map[string]*entity.TranscriptionJob
	recordErrs int
}

func newFakeTranscriptRepo() *fakeTranscriptRepo {
	return &fakeTranscriptRepo{
		saved: map[string]*entity.TranscriptionResult{},
		jobs:  map[string]*entity.TranscriptionJob{},
	}
}

func (f *fakeTranscriptRepo) SaveTranscript(_ context.Context, mediaID string, tr *entity.TranscriptionResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[mediaID] = tr
	return nil
}

func (f *fakeTranscriptRepo) LoadTranscript(_ context.Context, mediaID string) (*entity.TranscriptionResult, error) {
	tr, ok := f.saved[mediaID]
	if !ok {
		return nil, errors.New("not found")
	}
	return tr, nil
}

func (f *fakeTranscriptRepo) RecordJob(_ context.Context, mediaID string, job *entity.TranscriptionJob) error {
	f.jobs[job.ID] = job
	return nil
}

func completedResult() *transcribe.Result {
	return &transcribe.Result{
		Job: entity.TranscriptionJob{ID: "job-1", RemoteID: "rem-1", Status: constants.JobStatusCompleted},
		Transcript: &entity.TranscriptionResult{
			ID:         "rem-1",
			Transcript: "the court is now in session",
			Segments: []entity.TranscriptSegment{
				{Text: "the court is now in session", StartTimeMs: 0, EndTimeMs: 2500, Speaker: "A"},
			},
		},
	}
}

type fixture struct {
	orch    *Orchestrator
	media   *fakeMediaRepo
	trs     *fakeTranscriptRepo
	indexer *fakeIndexer
}

func newFixture(svc transcribe.Service, topics TopicExtractor, indexer *fakeIndexer, media *fakeMediaRepo) *fixture {
	if indexer == nil {
		indexer = &fakeIndexer{}
	}
	if media == nil {
		media = &fakeMediaRepo{}
	}
	trs := newFakeTranscriptRepo()
	orch := NewOrchestrator(
		&fakeExtractor{}, &fakePublisher{}, svc, topics, indexer, media, trs,
		OrchestratorConfig{IndexRetries: 2, IndexRetryDelay: time.Millisecond},
		nil,
	)
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	return &fixture{orch: orch, media: media, trs: trs, indexer: indexer}
}

// TestProcessMediaSucceeds walks the whole pipeline through to DONE.
func TestProcessMediaSucceeds(t *testing.T) {
	fx := newFixture(&fakeService{result: completedResult()}, &fakeTopics{topics: []string{"procedure"}}, nil, nil)

	var stages []constants.IngestionStage
	fx.orch.onProgress = func(p Progress) { stages = append(stages, p.Stage) }

	out := fx.orch.ProcessMedia(context.Background(), "/archive/hearing-041.mp4")

	if out.Status != OutcomeSucceeded || out.Stage != constants.StageDone {
		t.Fatalf("outcome = %s at %s, want SUCCEEDED/DONE (errors: %v)", out.Status, out.Stage, out.Errors)
	}
	if out.Transcript == nil || out.Transcript.Transcript == "" {
		t.Fatal("expected transcript on outcome")
	}
	if len(out.Topics) != 1 || out.Topics[0] != "procedure" {
		t.Fatalf("topics = %v", out.Topics)
	}
	if fx.trs.saved["media-1"] == nil {
		t.Fatal("transcript not persisted")
	}
	if len(fx.media.marked) != 1 {
		t.Fatalf("marked = %v, want media-1 marked indexed", fx.media.marked)
	}
	if fx.indexer.last.Title != "hearing-041" {
		t.Fatalf("indexed title = %q", fx.indexer.last.Title)
	}
	if stages[len(stages)-1] != constants.StageDone {
		t.Fatalf("final progress stage = %s", stages[len(stages)-1])
	}
}

// TestProcessMediaExtractionFailureIsFatal stops before any provider call.
func TestProcessMediaExtractionFailureIsFatal(t *testing.T) {
	media := &fakeMediaRepo{}
	trs := newFakeTranscriptRepo()
	svc := &fakeService{result: completedResult()}
	orch := NewOrchestrator(
		&fakeExtractor{err: errors.New("ffmpeg exit 1")}, &fakePublisher{}, svc, nil,
		&fakeIndexer{}, media, trs,
		OrchestratorConfig{}, nil,
	)

	out := orch.ProcessMedia(context.Background(), "/archive/bad.mp4")

	if out.Status != OutcomeFailed || out.Stage != constants.StageExtractingAudio {
		t.Fatalf("outcome = %s at %s, want FAILED/EXTRACTING_AUDIO", out.Status, out.Stage)
	}
	if out.Transcript != nil {
		t.Fatal("no transcript expected")
	}
	if len(media.marked) != 0 {
		t.Fatal("must not mark indexed on failure")
	}
}

// TestProcessMediaIndexFailureIsPartial an indexing outage after a successful
// transcription must keep the transcript and report partial success.
func TestProcessMediaIndexFailureIsPartial(t *testing.T) {
	indexer := &fakeIndexer{alwaysErr: errors.New("index down")}
	fx := newFixture(&fakeService{result: completedResult()}, nil, indexer, nil)

	out := fx.orch.ProcessMedia(context.Background(), "/archive/hearing-041.mp4")

	if out.Status != OutcomePartial {
		t.Fatalf("status = %s, want PARTIAL", out.Status)
	}
	if out.Transcript == nil {
		t.Fatal("transcript must survive index failure")
	}
	if fx.trs.saved["media-1"] == nil {
		t.Fatal("transcript must still be persisted")
	}
	if len(fx.media.marked) != 0 {
		t.Fatalf("marked = %v, must not mark indexed when indexing failed", fx.media.marked)
	}
	// 1 initial try + 2 retries
	if indexer.calls != 3 {
		t.Fatalf("index calls = %d, want 3", indexer.calls)
	}
}

// TestProcessMediaIndexRetrySucceeds a transient index failure is retried and
// the outcome stays a full success.
func TestProcessMediaIndexRetrySucceeds(t *testing.T) {
	indexer := &fakeIndexer{failFirst: 1}
	fx := newFixture(&fakeService{result: completedResult()}, nil, indexer, nil)

	out := fx.orch.ProcessMedia(context.Background(), "/archive/hearing-041.mp4")

	if out.Status != OutcomeSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED (errors: %v)", out.Status, out.Errors)
	}
	if indexer.calls != 2 {
		t.Fatalf("index calls = %d, want 2", indexer.calls)
	}
	if len(fx.media.marked) != 1 {
		t.Fatal("expected media marked indexed after retry success")
	}
}

// TestProcessMediaTopicsFailureIsBestEffort topics errors never downgrade.
func TestProcessMediaTopicsFailureIsBestEffort(t *testing.T) {
	fx := newFixture(&fakeService{result: completedResult()}, &fakeTopics{err: errors.New("model offline")}, nil, nil)

	out := fx.orch.ProcessMedia(context.Background(), "/archive/hearing-041.mp4")

	if out.Status != OutcomeSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", out.Status)
	}
	if len(out.Topics) != 0 {
		t.Fatalf("topics = %v, want none", out.Topics)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("errors = %v, want topics failure recorded", out.Errors)
	}
}

// TestProcessMediaProviderFailure a FAILED job yields a failed outcome with
// the job audit row still recorded.
func TestProcessMediaProviderFailure(t *testing.T) {
	failed := &transcribe.Result{
		Job: entity.TranscriptionJob{ID: "job-2", Status: constants.JobStatusFailed, LastError: "audio unreadable"},
	}
	fx := newFixture(&fakeService{result: failed}, nil, nil, nil)

	out := fx.orch.ProcessMedia(context.Background(), "/archive/corrupt.mp4")

	if out.Status != OutcomeFailed {
		t.Fatalf("status = %s, want FAILED", out.Status)
	}
	if out.JobStatus != constants.JobStatusFailed {
		t.Fatalf("job status = %s", out.JobStatus)
	}
	if fx.trs.jobs["job-2"] == nil {
		t.Fatal("job audit row not recorded")
	}
}

// TestProcessMediaCancelledDuringUpload caller cancellation surfacing in the
// publish step classifies the outcome CANCELLED, never FAILED.
func TestProcessMediaCancelledDuringUpload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orch := NewOrchestrator(
		&fakeExtractor{}, &cancellingPublisher{cancel: cancel},
		&fakeService{result: completedResult()}, nil,
		&fakeIndexer{}, &fakeMediaRepo{}, newFakeTranscriptRepo(),
		OrchestratorConfig{}, nil,
	)

	out := orch.ProcessMedia(ctx, "/archive/hearing.mp4")

	if out.Status != OutcomeCancelled {
		t.Fatalf("status = %s, want CANCELLED (errors: %v)", out.Status, out.Errors)
	}
	if out.Stage != constants.StageSubmitting {
		t.Fatalf("stage = %s, want SUBMITTING", out.Stage)
	}
}

type cancellingPublisher struct{ cancel context.CancelFunc }

func (p *cancellingPublisher) Upload(ctx context.Context, _ string) (string, error) {
	p.cancel()
	return "", ctx.Err()
}

// TestProcessMediaCancelledDuringExtraction same classification one stage earlier.
func TestProcessMediaCancelledDuringExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orch := NewOrchestrator(
		&fakeExtractor{err: context.Canceled}, &fakePublisher{},
		&fakeService{result: completedResult()}, nil,
		&fakeIndexer{}, &fakeMediaRepo{}, newFakeTranscriptRepo(),
		OrchestratorConfig{}, nil,
	)

	out := orch.ProcessMedia(ctx, "/archive/hearing.mp4")

	if out.Status != OutcomeCancelled {
		t.Fatalf("status = %s, want CANCELLED (errors: %v)", out.Status, out.Errors)
	}
}

// TestProcessMediaCancellation a cancelled context maps to CANCELLED, not FAILED.
func TestProcessMediaCancellation(t *testing.T) {
	cancelled := &transcribe.Result{
		Job: entity.TranscriptionJob{ID: "job-3", Status: constants.JobStatusCancelled},
	}
	fx := newFixture(&fakeService{result: cancelled, err: context.Canceled}, nil, nil, nil)

	out := fx.orch.ProcessMedia(context.Background(), "/archive/hearing.mp4")

	if out.Status != OutcomeCancelled {
		t.Fatalf("status = %s, want CANCELLED", out.Status)
	}
}

// TestProcessMediaPersistFailureIsPartial transcript save failure downgrades
// but keeps the in-memory transcript on the outcome.
func TestProcessMediaPersistFailureIsPartial(t *testing.T) {
	media := &fakeMediaRepo{}
	trs := newFakeTranscriptRepo()
	trs.saveErr = errors.New("disk full")
	orch := NewOrchestrator(
		&fakeExtractor{}, &fakePublisher{}, &fakeService{result: completedResult()}, nil,
		&fakeIndexer{}, media, trs,
		OrchestratorConfig{}, nil,
	)

	out := orch.ProcessMedia(context.Background(), "/archive/hearing.mp4")

	if out.Status != OutcomePartial {
		t.Fatalf("status = %s, want PARTIAL", out.Status)
	}
	if out.Transcript == nil {
		t.Fatal("transcript must remain on outcome")
	}
}
