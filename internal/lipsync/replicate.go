// Package lipsync drives Kling lip-sync predictions on Replicate.
// Each prediction combines the hero Santa video with one audio track
// and yields a lip-synced clip.
package lipsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	ReplicateAPIBaseURL = "https://api.replicate.com/v1"
	DefaultModel        = "kwaivgi/kling-lip-sync"

	// Replicate allows bursts of 5 requests; submissions above that
	// are spaced out.
	defaultBatchSize  = 5
	defaultBatchDelay = 2 * time.Second
)

// Status is a normalized prediction state.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the prediction has stopped moving.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// normalizeStatus maps upstream states onto the known set. Unknown
// states are treated as failed rather than polled forever.
func normalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusStarting, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled:
		return Status(raw)
	default:
		return StatusFailed
	}
}

// Prediction is the observable state of one lip-sync job.
type Prediction struct {
	ID     string
	Status Status
	Output string // video URL once succeeded
	Error  string
}

// Config holds Replicate client settings.
type Config struct {
	APIToken     string
	BaseURL      string // Optional override (tests)
	Model        string // Default: kwaivgi/kling-lip-sync
	HeroVideoURL string // Source Santa video every prediction lip-syncs
	Timeout      time.Duration
	BatchSize    int
	BatchDelay   time.Duration
	HTTPClient   *http.Client
}

// Client talks to the Replicate predictions API.
type Client struct {
	apiToken     string
	baseURL      string
	model        string
	heroVideoURL string
	batchSize    int
	batchDelay   time.Duration
	client       *http.Client
	logger       *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replicate lip-sync client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ReplicateAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = defaultBatchDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiToken:     cfg.APIToken,
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		heroVideoURL: cfg.HeroVideoURL,
		batchSize:    cfg.BatchSize,
		batchDelay:   cfg.BatchDelay,
		client:       httpClient,
		logger:       slog.Default().With("component", "lipsync"),
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type predictionInput struct {
	VideoURL string `json:"video_url"`
	// The Kling model takes audio_file, not audio_url.
	AudioFile string `json:"audio_file"`
}

type createPredictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// verifyReachable re-checks the audio URL right before submission.
// Replicate's workers fetch it independently, and synthesis-side
// verification may be minutes stale by the time a chunk is submitted.
func (c *Client) verifyReachable(ctx context.Context, audioURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, audioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build audio check request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("audio url unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio url returned status %d", resp.StatusCode)
	}
	return nil
}

// Submit creates one prediction and returns its ID.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	if err := c.verifyReachable(ctx, audioURL); err != nil {
		return "", err
	}
	resp, err := c.create(ctx, audioURL)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "created lipsync prediction", "prediction_id", resp.ID, "audio_url", audioURL)
	return resp.ID, nil
}

// SubmitBatch creates predictions for every audio URL, preserving
// order. Submissions run in batches with a pause in between so the
// burst limit is respected.
func (c *Client) SubmitBatch(ctx context.Context, audioURLs []string) ([]string, error) {
	ids := make([]string, len(audioURLs))

	for start := 0; start < len(audioURLs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(audioURLs) {
			end = len(audioURLs)
		}
		batch := audioURLs[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for i, audioURL := range batch {
			idx := start + i
			url := audioURL
			g.Go(func() error {
				resp, err := c.create(gctx, url)
				if err != nil {
					return fmt.Errorf("prediction %d/%d: %w", idx+1, len(audioURLs), err)
				}
				ids[idx] = resp.ID
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		c.logger.InfoContext(ctx, "lipsync batch submitted",
			"batch", start/c.batchSize+1,
			"count", len(batch),
		)

		if end < len(audioURLs) {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				return nil, err
			}
		}
	}

	return ids, nil
}

// create posts a prediction, retrying once after the server-requested
// delay when rate limited.
func (c *Client) create(ctx context.Context, audioURL string) (*predictionResponse, error) {
	resp, retryAfter, err := c.doCreate(ctx, audioURL)
	if err == nil || retryAfter == 0 {
		return resp, err
	}

	c.logger.WarnContext(ctx, "rate limited creating prediction", "retry_after", retryAfter)
	if err := c.sleep(ctx, retryAfter); err != nil {
		return nil, err
	}
	resp, _, err = c.doCreate(ctx, audioURL)
	return resp, err
}

// doCreate returns a non-zero retryAfter only for 429 responses.
func (c *Client) doCreate(ctx context.Context, audioURL string) (*predictionResponse, time.Duration, error) {
	body, err := json.Marshal(createPredictionRequest{
		Input: predictionInput{
			VideoURL:  c.heroVideoURL,
			AudioFile: audioURL,
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, retryAfter, fmt.Errorf("replicate rate limited (status 429)")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, 0, fmt.Errorf("replicate error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var pred predictionResponse
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if pred.ID == "" {
		return nil, 0, fmt.Errorf("replicate returned prediction without id")
	}
	return &pred, 0, nil
}

// Status fetches and normalizes one prediction.
func (c *Client) Status(ctx context.Context, predictionID string) (*Prediction, error) {
	endpoint := fmt.Sprintf("%s/predictions/%s", c.baseURL, predictionID)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("replicate error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var raw predictionResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Prediction{
		ID:     raw.ID,
		Status: normalizeStatus(raw.Status),
		Output: coerceOutput(raw.Output),
		Error:  raw.Error,
	}, nil
}

// StatusBatch fetches predictions concurrently, preserving order.
func (c *Client) StatusBatch(ctx context.Context, predictionIDs []string) ([]*Prediction, error) {
	preds := make([]*Prediction, len(predictionIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range predictionIDs {
		i, id := i, id
		g.Go(func() error {
			p, err := c.Status(gctx, id)
			if err != nil {
				return err
			}
			preds[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

// coerceOutput extracts a URL from the model output, which may be a
// string, an array of strings, or some other JSON value.
func coerceOutput(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return ""
		}
		var first string
		if err := json.Unmarshal(arr[0], &first); err == nil {
			return first
		}
		return string(arr[0])
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
