// Package runpod drives the serverless GPU worker that splits audio,
// stitches video chunks, and optionally runs the whole
// split/generate/stitch pipeline in one job. The worker reads and
// writes R2 directly, so job payloads carry the bucket credentials.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santagram/santagram/internal/poll"
)

const (
	DefaultBaseURL = "https://api.runpod.ai/v2"

	// Worker modes.
	ModeSplitAudio        = "split_audio"
	ModeStitch            = "stitch"
	ModeGenerateAndStitch = "generate_and_stitch"
)

// Job states reported by the serverless API.
const (
	StateInQueue    = "IN_QUEUE"
	StateInProgress = "IN_PROGRESS"
	StateCompleted  = "COMPLETED"
	StateFailed     = "FAILED"
	StateCanceled   = "CANCELED"
)

var (
	// ErrJobFailed marks a job the worker reported as failed or canceled.
	ErrJobFailed = errors.New("runpod job failed")

	// ErrJobTimeout marks a job that outlived its polling budget.
	ErrJobTimeout = errors.New("runpod job timed out")
)

// R2Credentials are forwarded inside job payloads so the worker can
// access the media bucket.
type R2Credentials struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

// Endpoint returns the S3 endpoint derived from the account ID.
func (c R2Credentials) Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// Config holds RunPod client settings.
type Config struct {
	APIKey     string
	EndpointID string
	BaseURL    string // Optional override (tests)

	// ReplicateToken is forwarded for generate_and_stitch jobs so the
	// worker can create its own lipsync predictions.
	ReplicateToken string

	// HeroVideoURL is the source Santa video for pipeline jobs.
	HeroVideoURL string

	// WebhookURL receives a POST when an async pipeline job finishes.
	WebhookURL string

	R2 R2Credentials

	// Polling knobs for synchronous jobs.
	PollInterval      time.Duration // default 5s
	SplitMaxAttempts  int           // default 60 (5 minutes)
	StitchMaxAttempts int           // default 120 (10 minutes)

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to a RunPod serverless endpoint.
type Client struct {
	apiKey         string
	endpointID     string
	baseURL        string
	replicateToken string
	heroVideoURL   string
	webhookURL     string
	r2             R2Credentials

	pollInterval      time.Duration
	splitMaxAttempts  int
	stitchMaxAttempts int

	client *http.Client
	logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a RunPod client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("RunPod API key is required")
	}
	if cfg.EndpointID == "" {
		return nil, fmt.Errorf("RunPod endpoint ID is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SplitMaxAttempts <= 0 {
		cfg.SplitMaxAttempts = 60
	}
	if cfg.StitchMaxAttempts <= 0 {
		cfg.StitchMaxAttempts = 120
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:            cfg.APIKey,
		endpointID:        cfg.EndpointID,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		replicateToken:    cfg.ReplicateToken,
		heroVideoURL:      cfg.HeroVideoURL,
		webhookURL:        cfg.WebhookURL,
		r2:                cfg.R2,
		pollInterval:      cfg.PollInterval,
		splitMaxAttempts:  cfg.SplitMaxAttempts,
		stitchMaxAttempts: cfg.StitchMaxAttempts,
		client:            httpClient,
		logger:            slog.Default().With("component", "runpod"),
	}, nil
}

// ExtractKey turns a public object URL into its bucket key. Inputs
// that are already keys pass through unchanged.
func ExtractKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Path, "/")
}

// jobInput is the worker payload. Fields are omitted when empty so
// each mode only carries what it needs.
type jobInput struct {
	Mode          string   `json:"mode,omitempty"`
	AudioKey      string   `json:"audio_key,omitempty"`
	VideoChunks   []string `json:"video_chunks,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
	ChunkDuration int      `json:"chunk_duration,omitempty"`
	OutputKey     string   `json:"output_key,omitempty"`

	ReplicateAPIToken string `json:"replicate_api_token,omitempty"`

	R2AccountID       string `json:"r2_account_id"`
	R2AccessKeyID     string `json:"r2_access_key_id"`
	R2SecretAccessKey string `json:"r2_secret_access_key"`
	R2BucketName      string `json:"r2_bucket_name"`
	R2Endpoint        string `json:"r2_endpoint,omitempty"`
	R2PublicURL       string `json:"r2_public_url,omitempty"`
}

type runRequest struct {
	Input   jobInput `json:"input"`
	Webhook string   `json:"webhook,omitempty"`
}

type runResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

type jobOutput struct {
	VideoURL  string   `json:"video_url"`
	ChunkURLs []string `json:"chunk_urls"`
}

// JobResult is the normalized view of an async job.
type JobResult struct {
	Status   string // IN_PROGRESS, COMPLETED, FAILED
	VideoURL string
	Error    string
}

// SplitAudio runs a synchronous split_audio job and returns the
// public URLs of the produced chunks, in order.
func (c *Client) SplitAudio(ctx context.Context, audioURL string, chunkSeconds int) ([]string, error) {
	input := c.baseInput()
	input.Mode = ModeSplitAudio
	input.AudioKey = ExtractKey(audioURL)
	input.ChunkDuration = chunkSeconds
	input.R2PublicURL = c.r2.PublicURL

	jobID, err := c.run(ctx, runRequest{Input: input})
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "split_audio job submitted", "job_id", jobID)

	out, err := c.waitForOutput(ctx, jobID, c.splitMaxAttempts)
	if err != nil {
		return nil, err
	}
	if len(out.ChunkURLs) == 0 {
		return nil, fmt.Errorf("job %s completed but returned no chunk_urls", jobID)
	}
	return out.ChunkURLs, nil
}

// Stitch runs a synchronous stitch job over the given video chunks
// and full audio track, writing the result to outputKey. Returns the
// final video URL.
func (c *Client) Stitch(ctx context.Context, videoChunkURLs []string, audioURL, outputKey string) (string, error) {
	if len(videoChunkURLs) == 0 {
		return "", fmt.Errorf("no video chunks provided")
	}

	keys := make([]string, len(videoChunkURLs))
	for i, u := range videoChunkURLs {
		keys[i] = ExtractKey(u)
	}

	input := c.baseInput()
	input.Mode = ModeStitch
	input.VideoChunks = keys
	input.AudioKey = ExtractKey(audioURL)
	input.OutputKey = outputKey
	input.R2Endpoint = c.r2.Endpoint()

	jobID, err := c.run(ctx, runRequest{Input: input})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "stitch job submitted", "job_id", jobID, "chunks", len(keys))

	out, err := c.waitForOutput(ctx, jobID, c.stitchMaxAttempts)
	if err != nil {
		return "", err
	}
	if out.VideoURL != "" {
		return out.VideoURL, nil
	}
	// Worker wrote to outputKey without echoing a URL.
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.r2.PublicURL, "/"), outputKey), nil
}

// SubmitPipeline submits an asynchronous generate_and_stitch job and
// returns its ID. Completion arrives on the webhook; pass webhookURL
// "" to use the configured default. The ID can also be polled via
// JobStatus.
func (c *Client) SubmitPipeline(ctx context.Context, audioURL, outputKey string, chunkSeconds int, webhookURL string) (string, error) {
	if c.replicateToken == "" {
		return "", fmt.Errorf("replicate token is required for pipeline jobs")
	}
	if webhookURL == "" {
		webhookURL = c.webhookURL
	}

	input := c.baseInput()
	input.Mode = ModeGenerateAndStitch
	input.AudioKey = ExtractKey(audioURL)
	input.VideoURL = c.heroVideoURL
	input.ChunkDuration = chunkSeconds
	input.OutputKey = outputKey
	input.ReplicateAPIToken = c.replicateToken
	input.R2PublicURL = c.r2.PublicURL

	jobID, err := c.run(ctx, runRequest{Input: input, Webhook: webhookURL})
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "pipeline job submitted", "job_id", jobID, "webhook", webhookURL)
	return jobID, nil
}

// JobStatus returns the normalized state of an async job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobResult, error) {
	st, err := c.status(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch st.Status {
	case StateCompleted:
		var out jobOutput
		if len(st.Output) > 0 {
			if err := json.Unmarshal(st.Output, &out); err != nil {
				return nil, fmt.Errorf("failed to decode job output: %w", err)
			}
		}
		if out.VideoURL == "" {
			return nil, fmt.Errorf("job %s completed but no video_url in output", jobID)
		}
		return &JobResult{Status: StateCompleted, VideoURL: out.VideoURL}, nil
	case StateFailed, StateCanceled:
		msg := st.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &JobResult{Status: StateFailed, Error: msg}, nil
	default:
		return &JobResult{Status: StateInProgress}, nil
	}
}

func (c *Client) baseInput() jobInput {
	return jobInput{
		R2AccountID:       c.r2.AccountID,
		R2AccessKeyID:     c.r2.AccessKeyID,
		R2SecretAccessKey: c.r2.SecretAccessKey,
		R2BucketName:      c.r2.Bucket,
	}
}

func (c *Client) run(ctx context.Context, req runRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/run", c.baseURL, c.endpointID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("RunPod API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var run runResponse
	if err := json.Unmarshal(respBody, &run); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if run.ID == "" {
		return "", fmt.Errorf("RunPod returned job without id")
	}
	return run.ID, nil
}

func (c *Client) status(ctx context.Context, jobID string) (*statusResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/status/%s", c.baseURL, c.endpointID, jobID)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return nil, fmt.Errorf("failed to check job status (status %d): %s", resp.StatusCode, string(respBody))
	}

	var st statusResponse
	if err := json.Unmarshal(respBody, &st); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &st, nil
}

// waitForOutput polls a synchronous job until it completes.
func (c *Client) waitForOutput(ctx context.Context, jobID string, maxAttempts int) (*jobOutput, error) {
	var out jobOutput

	err := poll.Wait(ctx, poll.Config{
		Interval:    c.pollInterval,
		MaxAttempts: maxAttempts,
		Sleep:       c.sleep,
	}, func(ctx context.Context, attempt int) (bool, error) {
		st, err := c.status(ctx, jobID)
		if err != nil {
			return false, err
		}

		c.logger.InfoContext(ctx, "job status",
			"job_id", jobID,
			"status", st.Status,
			"attempt", attempt,
			"max_attempts", maxAttempts,
		)

		switch st.Status {
		case StateCompleted:
			if len(st.Output) > 0 {
				if err := json.Unmarshal(st.Output, &out); err != nil {
					return false, fmt.Errorf("failed to decode job output: %w", err)
				}
			}
			return true, nil
		case StateFailed, StateCanceled:
			msg := st.Error
			if msg == "" {
				msg = "unknown error"
			}
			return false, fmt.Errorf("%w: job %s: %s", ErrJobFailed, jobID, msg)
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return nil, fmt.Errorf("%w: job %s after %d attempts", ErrJobTimeout, jobID, maxAttempts)
		}
		return nil, err
	}
	return &out, nil
}
