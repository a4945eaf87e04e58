package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockTTSName = "mock"

// MockTTSClient is a TTSProvider for testing.
type MockTTSClient struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)
	Audio      []byte

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	requestCount atomic.Int64
}

// NewMockTTSClient creates a new mock TTS client with sensible defaults.
func NewMockTTSClient() *MockTTSClient {
	return &MockTTSClient{
		Latency:    time.Millisecond,
		Audio:      []byte("mock-mp3-bytes"),
		RPS:        100,
		Retries:    3,
		RetryDelay: time.Second,
	}
}

// Name returns the provider identifier.
func (c *MockTTSClient) Name() string {
	return MockTTSName
}

// RequestsPerSecond returns the rate limit.
func (c *MockTTSClient) RequestsPerSecond() float64 {
	return c.RPS
}

// MaxRetries returns the maximum retry attempts.
func (c *MockTTSClient) MaxRetries() int {
	return c.Retries
}

// RetryDelayBase returns the base delay between retries.
func (c *MockTTSClient) RetryDelayBase() time.Duration {
	return c.RetryDelay
}

// HealthCheck always succeeds unless ShouldFail is set.
func (c *MockTTSClient) HealthCheck(ctx context.Context) error {
	if c.ShouldFail {
		return fmt.Errorf("mock TTS client configured to fail")
	}
	return nil
}

// Generate returns the configured audio bytes.
func (c *MockTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	if c.ShouldFail {
		err := fmt.Errorf("mock TTS client configured to fail")
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		err := fmt.Errorf("mock TTS client failed after %d requests", c.FailAfter)
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	// Simulate latency
	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return &TTSResult{
			Success:       false,
			ErrorMessage:  ctx.Err().Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, ctx.Err()
	}

	return &TTSResult{
		Success:       true,
		Audio:         c.Audio,
		DurationMS:    (len(req.Text) * 60 * 1000) / (150 * 5),
		Format:        "mp3",
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
		RequestID:     fmt.Sprintf("mock-%d", count),
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockTTSClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter.
func (c *MockTTSClient) Reset() {
	c.requestCount.Store(0)
}

// Verify interface
var _ TTSProvider = (*MockTTSClient)(nil)
