package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	ElevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultModel = "eleven_monolingual_v1"

	// The licensed Santa voice. Overridable per request or via config.
	ElevenLabsSantaVoiceID = "MDLAMJ0jxkpYkjXbmG4t"
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	BaseURL    string  // Optional override (tests)
	Model      string  // e.g., "eleven_monolingual_v1", "eleven_turbo_v2_5"
	Voice      string  // Default voice ID
	Format     string  // Output format: mp3_44100_128, mp3_22050_32, pcm_16000, etc.
	Stability  float64 // Voice stability (0.0-1.0)
	Similarity float64 // Similarity boost (0.0-1.0)
	Style      float64 // Style exaggeration (0.0-1.0)
	Speed      float64 // Speaking speed (0.7-1.2)
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	MaxRetries int
	RetryDelay time.Duration
}

func (cfg *ElevenLabsTTSConfig) applyDefaults() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ElevenLabsAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ElevenLabsDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = ElevenLabsSantaVoiceID
	}
	if cfg.Format == "" {
		cfg.Format = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Speed == 0 {
		// Slower pace reads as more natural for the character.
		cfg.Speed = 0.75
	}
	if cfg.Timeout == 0 {
		// Long scripts can take minutes to synthesize.
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
}

// ElevenLabsTTSClient implements TTSProvider using the ElevenLabs API.
type ElevenLabsTTSClient struct {
	cfg  ElevenLabsTTSConfig
	http *http.Client
}

// NewElevenLabsTTSClient creates a new ElevenLabs TTS client.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	cfg.applyDefaults()
	return &ElevenLabsTTSClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ElevenLabsTTSClient) Name() string                  { return ElevenLabsTTSName }
func (c *ElevenLabsTTSClient) Model() string                 { return c.cfg.Model }
func (c *ElevenLabsTTSClient) Voice() string                 { return c.cfg.Voice }
func (c *ElevenLabsTTSClient) Format() string                { return c.cfg.Format }
func (c *ElevenLabsTTSClient) RequestsPerSecond() float64    { return c.cfg.RateLimit }
func (c *ElevenLabsTTSClient) MaxRetries() int               { return c.cfg.MaxRetries }
func (c *ElevenLabsTTSClient) RetryDelayBase() time.Duration { return c.cfg.RetryDelay }

// HealthCheck verifies the API key against the /user endpoint.
func (c *ElevenLabsTTSClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("invalid API key")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Generate converts text to audio.
func (c *ElevenLabsTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	fail := func(err error) (*TTSResult, error) {
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	voice := req.Voice
	if voice == "" {
		voice = c.cfg.Voice
	}
	if voice == "" {
		return fail(fmt.Errorf("voice_id is required"))
	}
	format := req.Format
	if format == "" {
		format = c.cfg.Format
	}

	payload := elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.cfg.Model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.Similarity,
			Style:           c.cfg.Style,
			Speed:           c.cfg.Speed,
			UseSpeakerBoost: true,
		},
		PreviousRequestIDs: req.PreviousRequestIDs,
	}

	audio, requestID, err := c.synthesize(ctx, voice, format, payload)
	if err != nil {
		return fail(err)
	}

	container, sampleRate := parseOutputFormat(format)

	return &TTSResult{
		Success:    true,
		Audio:      audio,
		Format:     container,
		SampleRate: sampleRate,
		// Rough estimate at 150 wpm and 5 chars per word. The caller
		// re-derives duration from the audio file itself.
		DurationMS: (len(req.Text) * 60 * 1000) / (150 * 5),
		// Standard voices run about $0.30 per 1000 characters.
		CostUSD:       float64(len(req.Text)) * 0.0003,
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
		RequestID:     requestID,
	}, nil
}

// synthesize posts one TTS request and returns the audio bytes plus
// the request ID used for prosody stitching across segments.
func (c *ElevenLabsTTSClient) synthesize(ctx context.Context, voiceID, format string, payload elevenLabsTTSRequest) ([]byte, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", c.cfg.BaseURL, voiceID, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp elevenLabsErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail.Message != "" {
			msg = errResp.Detail.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", NewRateLimitError(fmt.Sprintf("ElevenLabs rate limited: %s", msg), resp)
		}
		return nil, "", fmt.Errorf("ElevenLabs TTS error (status %d): %s", resp.StatusCode, msg)
	}

	requestID := resp.Header.Get("request-id")
	if requestID == "" {
		requestID = resp.Header.Get("x-request-id")
	}
	return respBody, requestID, nil
}

// ListVoices retrieves the voices available to this API key.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var page elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(page.Voices))
	for _, v := range page.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: voiceDescription(v),
		})
	}
	return voices, nil
}

// voiceDescription falls back to the voice labels when no free-form
// description is set.
func voiceDescription(v elevenLabsVoice) string {
	if v.Description != "" {
		return v.Description
	}
	var parts []string
	for key, val := range v.Labels {
		parts = append(parts, key+": "+val)
	}
	return strings.Join(parts, ", ")
}

// parseOutputFormat splits an output format string such as
// "mp3_44100_128" into a container and sample rate. PCM variants map
// to wav.
func parseOutputFormat(format string) (container string, sampleRate int) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "mp3", 0
	}

	parts := strings.Split(format, "_")
	container = parts[0]
	switch container {
	case "pcm", "ulaw", "alaw":
		container = "wav"
	}
	if len(parts) >= 2 {
		if sr, err := strconv.Atoi(parts[1]); err == nil {
			sampleRate = sr
		}
	}
	return container, sampleRate
}

type elevenLabsTTSRequest struct {
	Text               string                  `json:"text"`
	ModelID            string                  `json:"model_id"`
	VoiceSettings      elevenLabsVoiceSettings `json:"voice_settings"`
	PreviousRequestIDs []string                `json:"previous_request_ids,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

var (
	_ TTSProvider  = (*ElevenLabsTTSClient)(nil)
	_ VoicesLister = (*ElevenLabsTTSClient)(nil)
)
