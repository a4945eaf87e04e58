package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAITTSName         = "openai"
	openAITTSDefaultModel = "gpt-4o-mini-tts"
	openAITTSDefaultVoice = "onyx"

	// Delivery note used when no instructions are configured. Only
	// models that accept instructions see this.
	openAITTSDefaultInstructions = "Speak as a warm, jolly Santa Claus with a deep voice and an unhurried pace."
)

// OpenAITTSConfig holds configuration for the OpenAI TTS client.
type OpenAITTSConfig struct {
	APIKey       string
	Model        string        // "gpt-4o-mini-tts" (default), "tts-1", "tts-1-hd"
	Voice        string        // "onyx" (default)
	Speed        float64       // 0.25-4.0
	Instructions string        // Used by gpt-4o-mini-tts
	RateLimit    float64       // Requests per second
	MaxRetries   int           // Retry attempts for SDK transport
	RetryDelay   time.Duration // Base retry delay for worker backoff
	Timeout      time.Duration // HTTP timeout
	BaseURL      string        // Optional (tests)
	HTTPClient   *http.Client  // Optional (tests)
}

func (cfg *OpenAITTSConfig) applyDefaults() {
	if cfg.Model == "" {
		cfg.Model = openAITTSDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAITTSDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.Instructions == "" {
		cfg.Instructions = openAITTSDefaultInstructions
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 8.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
}

// OpenAITTSClient implements TTSProvider using the official OpenAI SDK.
// It exists as a fallback voice when the ElevenLabs quota is exhausted.
type OpenAITTSClient struct {
	cfg    OpenAITTSConfig
	client openai.Client
}

// NewOpenAITTSClient creates a new OpenAI TTS client.
func NewOpenAITTSClient(cfg OpenAITTSConfig) *OpenAITTSClient {
	cfg.applyDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITTSClient{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

func (c *OpenAITTSClient) Name() string                  { return OpenAITTSName }
func (c *OpenAITTSClient) Model() string                 { return c.cfg.Model }
func (c *OpenAITTSClient) Voice() string                 { return c.cfg.Voice }
func (c *OpenAITTSClient) RequestsPerSecond() float64    { return c.cfg.RateLimit }
func (c *OpenAITTSClient) MaxRetries() int               { return c.cfg.MaxRetries }
func (c *OpenAITTSClient) RetryDelayBase() time.Duration { return c.cfg.RetryDelay }

// HealthCheck verifies the API key by listing models.
func (c *OpenAITTSClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

// Generate converts text to audio.
func (c *OpenAITTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	fail := func(charCount int, err error) (*TTSResult, error) {
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     charCount,
			ExecutionTime: time.Since(start),
		}, err
	}

	if req == nil {
		return fail(0, fmt.Errorf("request is required"))
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fail(0, fmt.Errorf("text is required"))
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.cfg.Voice
	}

	format := normalizeOpenAIFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          openai.Float(c.cfg.Speed),
	}

	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = strings.TrimSpace(c.cfg.Instructions)
	}
	if instructions != "" && supportsInstructions(c.cfg.Model) {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fail(len(text), mapOpenAIError(err))
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(len(text), fmt.Errorf("failed reading openai audio response: %w", err))
	}

	return &TTSResult{
		Success: true,
		Audio:   audio,
		Format:  openAIResultFormat(format),
		// Rough estimate to align with the ElevenLabs client.
		DurationMS:    (len(text) * 60 * 1000) / (150 * 5),
		CostUSD:       estimateOpenAITTSCostUSD(c.cfg.Model, text),
		CharCount:     len(text),
		ExecutionTime: time.Since(start),
	}, nil
}

func estimateOpenAITTSCostUSD(model, text string) float64 {
	perThousand := 0.015 // tts-1 rate, also used for gpt-4o-mini-tts
	if strings.TrimSpace(strings.ToLower(model)) == "tts-1-hd" {
		perThousand = 0.03
	}
	return float64(len(text)) * perThousand / 1000.0
}

// ListVoices returns the built-in OpenAI TTS voice list.
func (c *OpenAITTSClient) ListVoices(_ context.Context) ([]Voice, error) {
	names := []string{
		"alloy", "ash", "ballad", "coral", "echo", "fable", "nova",
		"onyx", "sage", "shimmer", "verse", "marin", "cedar",
	}
	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{VoiceID: name, Name: name})
	}
	return voices, nil
}

func supportsInstructions(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-4o-mini-tts")
}

func normalizeOpenAIFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case "pcm":
		return openai.AudioSpeechNewParamsResponseFormatPCM
	default:
		// Includes "", "mp3", and ElevenLabs-style strings such as
		// "mp3_44100_128" passed through shared config.
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

func openAIResultFormat(format openai.AudioSpeechNewParamsResponseFormat) string {
	switch format {
	case openai.AudioSpeechNewParamsResponseFormatOpus:
		return "opus"
	case openai.AudioSpeechNewParamsResponseFormatAAC:
		return "aac"
	case openai.AudioSpeechNewParamsResponseFormatFLAC:
		return "flac"
	case openai.AudioSpeechNewParamsResponseFormatWAV,
		openai.AudioSpeechNewParamsResponseFormatPCM:
		return "wav"
	default:
		return "mp3"
	}
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return &RateLimitError{
			Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
			RetryAfter: retryAfter,
			StatusCode: apiErr.StatusCode,
		}
	}
	if apiErr.Message != "" {
		return fmt.Errorf("OpenAI TTS error (status %d): %s", apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("OpenAI TTS error (status %d)", apiErr.StatusCode)
}

var (
	_ TTSProvider  = (*OpenAITTSClient)(nil)
	_ VoicesLister = (*OpenAITTSClient)(nil)
)
