package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/resilience"
)

// Client owns HTTP submission, status and cancel calls against the remote
// transcription API. Every call is routed through the shared resilience
// policy; the client returns wire DTOs and leaves canonical conversion to
// the mapper.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  *resilience.Policy
	logger  *slog.Logger
	schema  map[string]any
}

// ClientConfig configures the provider client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

func NewClient(cfg ClientConfig, policy *resilience.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		policy:  policy,
		logger:  logger,
		schema:  BuildTranscriptResponseSchema(),
	}
}

// Submit creates a remote transcription job and returns the provider's job
// id. Transport-level failures are retried through the policy; permanent 4xx
// rejections surface immediately as ErrSubmissionRejected.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("provider.submit.start", "req_id", rid, "audio_url", req.AudioURL)

	raw, err := resilience.Execute(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, http.MethodPost, "/v2/transcript", req)
	})
	if err != nil {
		var httpErr *common.HTTPError
		if errors.As(err, &httpErr) && !common.IsRetryableStatus(httpErr.StatusCode) {
			c.logger.Error("provider.submit.rejected",
				"req_id", rid, "status", httpErr.StatusCode,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return "", common.NewAppError("SUBMISSION_REJECTED", httpErr.Error(), common.ErrSubmissionRejected)
		}
		c.logger.Error("provider.submit.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var resp TranscriptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.ID == "" {
		return "", common.NewAppError("SUBMISSION_REJECTED", "provider returned no job id", common.ErrSubmissionRejected)
	}

	c.logger.Info("provider.submit.ok",
		"req_id", rid, "remote_id", resp.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.ID, nil
}

// GetStatus fetches the current state of a remote job. The payload is
// schema-checked before decoding so a malformed provider response is
// reported as such rather than as a half-empty DTO.
func (c *Client) GetStatus(ctx context.Context, remoteID string) (*TranscriptResponse, error) {
	return c.GetStatusNotify(ctx, remoteID, nil)
}

// GetStatusNotify is GetStatus with a per-retry callback so callers can
// record the resilience retries consumed by this poll against the job.
func (c *Client) GetStatusNotify(ctx context.Context, remoteID string, onRetry func(attempt int, err error)) (*TranscriptResponse, error) {
	raw, err := resilience.ExecuteNotify(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, http.MethodGet, "/v2/transcript/"+remoteID, nil)
	}, onRetry)
	if err != nil {
		return nil, err
	}

	if err := ValidateJSONAgainstSchema(c.schema, raw); err != nil {
		c.logger.Error("provider.status.schema_violation", "remote_id", remoteID, "error", err)
		return nil, fmt.Errorf("provider payload: %w", err)
	}

	var resp TranscriptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	c.logger.Debug("provider.status.ok", "remote_id", remoteID, "status", resp.Status)
	return &resp, nil
}

// Cancel asks the provider to abandon a job. Best effort: if the provider
// already completed or no longer knows the job, Cancel reports false with no
// error.
func (c *Client) Cancel(ctx context.Context, remoteID string) (bool, error) {
	_, err := resilience.Execute(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, http.MethodDelete, "/v2/transcript/"+remoteID, nil)
	})
	if err != nil {
		var httpErr *common.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			c.logger.Info("provider.cancel.noop", "remote_id", remoteID, "status", httpErr.StatusCode)
			return false, nil
		}
		c.logger.Warn("provider.cancel.failed", "remote_id", remoteID, "error", err)
		return false, err
	}
	c.logger.Info("provider.cancel.ok", "remote_id", remoteID)
	return true, nil
}

// Upload streams a local audio file to the provider's upload endpoint and
// returns the URL later passed as audio_url in a submission.
func (c *Client) Upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw, err := resilience.Execute(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind audio: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", f)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode/100 != 2 {
			return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return body, nil
	})
	if err != nil {
		return "", err
	}

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("provider returned no upload_url")
	}
	c.logger.Info("provider.upload.ok", "audio", audioPath)
	return out.UploadURL, nil
}

// send performs one HTTP round trip, returning the body for 2xx and a
// *common.HTTPError otherwise so the policy can classify the failure.
func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(b io.ReadCloser) {
		if err := b.Close(); err != nil {
			c.logger.Warn("provider.http.body_close_error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}
