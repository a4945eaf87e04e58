// Package speech turns a narration script into a publicly reachable
// audio file: TTS generation, R2 upload, then public-URL verification
// so downstream GPU workers never receive a dead link.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/santagram/santagram/internal/providers"
)

var (
	// ErrSynthesisFailed wraps TTS provider failures.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrStorageUnverified is returned when the uploaded audio never
	// became publicly reachable.
	ErrStorageUnverified = errors.New("uploaded audio not publicly reachable")
)

// Store is the slice of the storage client the synthesizer needs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	VerifyPublic(ctx context.Context, url string) error
}

// Synthesizer produces verified public audio for narration scripts.
type Synthesizer struct {
	provider providers.TTSProvider
	store    Store
	limiter  *providers.RateLimiter
	logger   *slog.Logger
}

// New creates a Synthesizer. Request pacing follows the provider's
// advertised rate limit.
func New(provider providers.TTSProvider, store Store, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		provider: provider,
		store:    store,
		limiter:  providers.NewRateLimiter(int(provider.RequestsPerSecond() * 60)),
		logger:   logger.With("component", "speech"),
	}
}

// Synthesize generates audio for the script, uploads it, and verifies
// the public URL responds before returning it.
func (s *Synthesizer) Synthesize(ctx context.Context, script string) (string, error) {
	if script == "" {
		return "", fmt.Errorf("%w: empty script", ErrSynthesisFailed)
	}

	result, err := s.generate(ctx, script)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if !result.Success || len(result.Audio) == 0 {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "provider returned no audio"
		}
		return "", fmt.Errorf("%w: %s", ErrSynthesisFailed, msg)
	}

	s.logger.Info("speech generated",
		"provider", s.provider.Name(),
		"chars", result.CharCount,
		"bytes", len(result.Audio),
	)

	key := fmt.Sprintf("audio/%s-santa-speech.mp3", uuid.New().String())
	url, err := s.store.Put(ctx, key, result.Audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("failed to store audio: %w", err)
	}

	if err := s.store.VerifyPublic(ctx, url); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnverified, err)
	}

	s.logger.Info("speech stored", "key", key, "url", url)
	return url, nil
}

// generate calls the provider under the token bucket, retrying only
// when the upstream reports a rate limit. Other provider errors are
// surfaced immediately.
func (s *Synthesizer) generate(ctx context.Context, script string) (*providers.TTSResult, error) {
	var result *providers.TTSResult
	err := retry.Do(
		func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			res, err := s.provider.Generate(ctx, &providers.TTSRequest{Text: script})
			if err != nil {
				if rle, ok := providers.IsRateLimitError(err); ok {
					s.limiter.Record429(rle.RetryAfter)
					s.logger.Warn("provider rate limited", "provider", s.provider.Name(), "retry_after", rle.RetryAfter)
					return err
				}
				return retry.Unrecoverable(err)
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.provider.MaxRetries())),
		retry.Delay(s.provider.RetryDelayBase()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return result, err
}
