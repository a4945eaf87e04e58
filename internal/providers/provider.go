package providers

import (
	"context"
	"time"
)

// TTSProvider converts narration text to audio. Implementations wrap
// a single upstream API and expose their own rate limiting and retry
// characteristics so the synthesizer can schedule around them.
type TTSProvider interface {
	// Name returns the provider identifier (e.g., "elevenlabs").
	Name() string

	// Generate converts text to audio.
	Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// HealthCheck verifies the upstream API is reachable and the
	// credentials are valid.
	HealthCheck(ctx context.Context) error

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// VoicesLister is implemented by providers that can enumerate their
// available voices.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// TTSRequest is a request to a TTS provider.
type TTSRequest struct {
	// Required
	Text string `json:"text"`

	// Voice ID (uses provider default if empty)
	Voice string `json:"voice,omitempty"`

	// Output format (provider-specific, e.g. "mp3_44100_128")
	Format string `json:"format,omitempty"`

	// Delivery instructions for models that support them
	Instructions string `json:"instructions,omitempty"`

	// Previous request IDs for prosody stitching across segments
	PreviousRequestIDs []string `json:"previous_request_ids,omitempty"`
}

// TTSResult is the response from a TTS provider.
type TTSResult struct {
	// Success/content
	Success bool   `json:"success"`
	Audio   []byte `json:"-"`

	// Audio metadata
	DurationMS int    `json:"duration_ms"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// Cost and timing
	CostUSD       float64       `json:"cost_usd"`
	CharCount     int           `json:"char_count"`
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider request ID, used for prosody stitching
	RequestID string `json:"request_id,omitempty"`

	// Error info
	ErrorMessage string `json:"error_message,omitempty"`
}

// Voice describes a selectable provider voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
