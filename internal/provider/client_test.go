package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/resilience"
)

func newTestClient(t *testing.T, handler http.Handler, retries int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	policy := resilience.NewPolicy(resilience.PolicyConfig{
		MaxRetryAttempts: retries,
		BaseDelay:        time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		JitterMax:        -1,
	}, nil, nil)

	c := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
	}, policy, nil)
	return c, srv
}

// TestSubmitReturnsRemoteID covers the happy path and the wire contract.
func TestSubmitReturnsRemoteID(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/transcript" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(TranscriptResponse{ID: "rem-42", Status: "queued"})
	}), 0)

	id, err := c.Submit(context.Background(), SubmitRequest{
		AudioURL:      "https://files.example.com/hearing.wav",
		LanguageCode:  "en",
		SpeakerLabels: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "rem-42" {
		t.Fatalf("remote id = %q, want rem-42", id)
	}
	if gotBody["audio_url"] != "https://files.example.com/hearing.wav" {
		t.Fatalf("audio_url field = %v", gotBody["audio_url"])
	}
	if gotBody["speaker_labels"] != true {
		t.Fatalf("speaker_labels field = %v", gotBody["speaker_labels"])
	}
}

// TestSubmitPermanentRejection verifies 4xx (non-429) is not retried and
// surfaces as a submission error.
func TestSubmitPermanentRejection(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"invalid audio_url"}`, http.StatusBadRequest)
	}), 3)

	_, err := c.Submit(context.Background(), SubmitRequest{AudioURL: "not-a-url"})
	if !errors.Is(err, common.ErrSubmissionRejected) {
		t.Fatalf("error = %v, want ErrSubmissionRejected", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on permanent 4xx)", n)
	}
}

// TestSubmitRetriesRateLimit verifies 429 is retried until success.
func TestSubmitRetriesRateLimit(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(TranscriptResponse{ID: "rem-9", Status: "queued"})
	}), 3)

	id, err := c.Submit(context.Background(), SubmitRequest{AudioURL: "https://x/a.wav"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "rem-9" {
		t.Fatalf("remote id = %q, want rem-9", id)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

// TestGetStatusRetriesServerErrors verifies 5xx retry then exhaustion.
func TestGetStatusRetriesServerErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}), 2)

	_, err := c.GetStatus(context.Background(), "rem-1")
	if !errors.Is(err, common.ErrTransientExhausted) {
		t.Fatalf("error = %v, want ErrTransientExhausted", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", n)
	}
}

// TestGetStatusDecodesPayload checks path and DTO decoding.
func TestGetStatusDecodesPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/transcript/rem-7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "rem-7",
			"status": "completed",
			"text": "all rise",
			"language_code": "en",
			"percent_complete": 100,
			"utterances": [{"start": 0, "end": 1500, "speaker": "A", "text": "all rise", "confidence": 0.97}]
		}`))
	}), 0)

	dto, err := c.GetStatus(context.Background(), "rem-7")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if dto.Status != "completed" || dto.Text == nil || *dto.Text != "all rise" {
		t.Fatalf("dto = %+v", dto)
	}
	if len(dto.Utterances) != 1 || dto.Utterances[0].Speaker != "A" {
		t.Fatalf("utterances = %+v", dto.Utterances)
	}
}

// TestGetStatusRejectsMalformedPayload exercises the schema check.
func TestGetStatusRejectsMalformedPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "completed"}`)) // id missing
	}), 0)

	if _, err := c.GetStatus(context.Background(), "rem-8"); err == nil {
		t.Fatal("expected schema violation error")
	}
}

// TestUploadReturnsURL uploads bytes and decodes the upload_url.
func TestUploadReturnsURL(t *testing.T) {
	dir := t.TempDir()
	audio := dir + "/clip.wav"
	if err := os.WriteFile(audio, []byte("RIFFdata"), 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFdata" {
			t.Errorf("body = %q", body)
		}
		_, _ = w.Write([]byte(`{"upload_url": "https://cdn.provider/upload/u-1"}`))
	}), 0)

	url, err := c.Upload(context.Background(), audio)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.provider/upload/u-1" {
		t.Fatalf("url = %q", url)
	}
}

// TestCancelBestEffort covers both the success and the already-gone cases.
func TestCancelBestEffort(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		switch r.URL.Path {
		case "/v2/transcript/alive":
			_ = json.NewEncoder(w).Encode(TranscriptResponse{ID: "alive", Status: "queued"})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}), 0)

	ok, err := c.Cancel(context.Background(), "alive")
	if err != nil || !ok {
		t.Fatalf("cancel(alive) = %v, %v, want true, nil", ok, err)
	}
	ok, err = c.Cancel(context.Background(), "gone")
	if err != nil || ok {
		t.Fatalf("cancel(gone) = %v, %v, want false, nil", ok, err)
	}
}
