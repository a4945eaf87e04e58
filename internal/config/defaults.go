package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default configuration entries.
// These are seeded into DefraDB on first run.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// TTS Providers
		// ===================

		// TTS Providers - OpenAI
		{
			Key:         "providers.tts.openai.type",
			Value:       "openai",
			Description: "TTS provider type for OpenAI",
		},
		{
			Key:         "providers.tts.openai.model",
			Value:       "tts-1-hd",
			Description: "Default OpenAI TTS model",
		},
		{
			Key:         "providers.tts.openai.voice",
			Value:       "onyx",
			Description: "Default OpenAI TTS voice (deep, Santa-adjacent)",
		},
		{
			Key:         "providers.tts.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.tts.openai.rate_limit",
			Value:       8.0,
			Description: "Rate limit in requests per second for OpenAI TTS",
		},
		{
			Key:         "providers.tts.openai.enabled",
			Value:       true,
			Description: "Whether OpenAI TTS provider is enabled",
		},

		// TTS Providers - ElevenLabs
		{
			Key:         "providers.tts.elevenlabs.type",
			Value:       "elevenlabs",
			Description: "TTS provider type for ElevenLabs",
		},
		{
			Key:         "providers.tts.elevenlabs.model",
			Value:       "eleven_turbo_v2_5",
			Description: "Model name for ElevenLabs TTS",
		},
		{
			Key:         "providers.tts.elevenlabs.api_key",
			Value:       "${ELEVENLABS_API_KEY}",
			Description: "ElevenLabs API key (uses environment variable)",
		},
		{
			Key:         "providers.tts.elevenlabs.rate_limit",
			Value:       10.0,
			Description: "Rate limit in requests per second for ElevenLabs",
		},
		{
			Key:         "providers.tts.elevenlabs.enabled",
			Value:       false,
			Description: "Whether ElevenLabs TTS provider is enabled",
		},

		// ===================
		// Fulfillment Defaults
		// ===================
		{
			Key:         "defaults.tts_provider",
			Value:       "openai",
			Description: "Default TTS provider for speech synthesis",
		},
		{
			Key:         "fulfillment.max_chunk_seconds",
			Value:       25,
			Description: "Audio duration threshold for single-clip vs chunked lip-sync",
		},
		{
			Key:         "fulfillment.use_pipeline",
			Value:       false,
			Description: "Route long audio to the serverless generate-and-stitch pipeline",
		},
		{
			Key:         "fulfillment.poll_interval_seconds",
			Value:       5,
			Description: "Delay between background job status checks",
		},
		{
			Key:         "fulfillment.poll_max_attempts",
			Value:       120,
			Description: "Maximum status checks per background continuation",
		},
	}
}

// SeedDefaults seeds default configuration entries into the store.
// This is idempotent - existing entries are not overwritten.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultEntries()
	seeded := 0
	skipped := 0

	for _, entry := range defaults {
		// Check if key already exists
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}

		if existing != nil {
			skipped++
			continue
		}

		// Create the entry
		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
