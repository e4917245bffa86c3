package topics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extractor derives a short topic list from a transcript. It is a
// best-effort collaborator: the orchestrator records failures and moves on.
type Extractor interface {
	ExtractTopics(ctx context.Context, transcript string) ([]string, error)
}

// Config configures the chat-completions backed extractor.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTopics   int
	PromptChars int // transcript excerpt length sent to the model
}

// Client calls a chat-completions API and validates the structured output.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 8
	}
	if cfg.PromptChars <= 0 {
		cfg.PromptChars = 6000
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

// ExtractTopics asks the model for a JSON topic list and validates it before
// returning.
func (c *Client) ExtractTopics(ctx context.Context, transcript string) ([]string, error) {
	rid := uuid.New().String()
	start := time.Now()

	excerpt := transcript
	if len(excerpt) > c.cfg.PromptChars {
		excerpt = excerpt[:c.cfg.PromptChars]
	}
	c.log.Info("topics.extract.start", "req_id", rid, "model", c.cfg.Model, "text_len", len(excerpt))

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     0.0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": fmt.Sprintf(
				"You label legal-proceeding transcripts. Return ONLY JSON of the form {\"topics\": [\"...\"]} with at most %d short topics.",
				c.cfg.MaxTopics)},
			{"role": "user", "content": "Transcript excerpt:\n" + excerpt},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("topics.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	topics, err := ParseTopics(content, c.cfg.MaxTopics)
	if err != nil {
		c.log.Error("topics.extract.invalid_output",
			"req_id", rid, "error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	c.log.Info("topics.extract.ok",
		"req_id", rid, "topics", len(topics),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return topics, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completions http error: %w", err)
	}
	defer func(b io.ReadCloser) {
		if err := b.Close(); err != nil {
			c.log.Warn("topics response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completions status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
