package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/santagram/santagram/internal/defra"
	"github.com/santagram/santagram/internal/providers"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ValidateKey checks a config key. Valid keys contain letters, digits,
// dots, underscores, and hyphens, and may not start or end with a dot.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Store provides access to configuration stored in DefraDB. Reads are
// always fresh; there is no cache layer.
type Store interface {
	// Get returns a single config entry by key, or nil when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set creates or updates a config entry.
	Set(ctx context.Context, key string, value any, description string) error

	// GetAll returns all config entries keyed by name.
	GetAll(ctx context.Context) (map[string]Entry, error)

	// GetByPrefix returns config entries whose key starts with prefix.
	GetByPrefix(ctx context.Context, prefix string) (map[string]Entry, error)

	// Delete removes a config entry.
	Delete(ctx context.Context, key string) error
}

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	DocID       string `json:"_docID,omitempty"`
}

// DefraStore implements Store using DefraDB.
type DefraStore struct {
	client *defra.Client
}

// NewStore creates a new DefraDB-backed config store.
func NewStore(client *defra.Client) *DefraStore {
	return &DefraStore{client: client}
}

var entryFields = []string{"_docID", "name", "value", "description"}

// runQuery executes a Config query and decodes the matching entries.
func (s *DefraStore) runQuery(ctx context.Context, qb *defra.QueryBuilder) ([]Entry, error) {
	resp, err := qb.Fields(entryFields...).Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("graphql error: %s", msg)
	}
	return parseConfigEntries(resp.Data)
}

// Get returns a single config entry by key.
func (s *DefraStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	entries, err := s.runQuery(ctx, defra.NewQuery("Config").Filter("name", key).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Set creates or updates a config entry. Values are stored as JSON so
// the Config collection can hold strings, numbers, and structures in
// one column.
func (s *DefraStore) Set(ctx context.Context, key string, value any, description string) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	input := map[string]any{
		"name":        key,
		"value":       string(valueJSON),
		"description": description,
	}

	if existing != nil {
		if err := s.client.Update(ctx, "Config", existing.DocID, input); err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		return nil
	}

	if _, err := s.client.Create(ctx, "Config", input); err != nil {
		// Lost a seed race with another writer; the entry exists.
		if strings.Contains(err.Error(), "already exists") {
			slog.Debug("config entry already seeded", "key", key)
			return nil
		}
		return fmt.Errorf("create failed: %w", err)
	}
	return nil
}

// GetAll returns all config entries.
func (s *DefraStore) GetAll(ctx context.Context) (map[string]Entry, error) {
	entries, err := s.runQuery(ctx, defra.NewQuery("Config"))
	if err != nil {
		return nil, err
	}

	result := make(map[string]Entry, len(entries))
	for _, e := range entries {
		result[e.Key] = e
	}
	return result, nil
}

// GetByPrefix returns config entries matching the prefix. DefraDB has
// no prefix operator so the filter runs client-side.
func (s *DefraStore) GetByPrefix(ctx context.Context, prefix string) (map[string]Entry, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Entry)
	for key, entry := range all {
		if strings.HasPrefix(key, prefix) {
			result[key] = entry
		}
	}
	return result, nil
}

// Delete removes a config entry by key.
func (s *DefraStore) Delete(ctx context.Context, key string) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to find entry: %w", err)
	}
	if existing == nil {
		return nil
	}
	if err := s.client.Delete(ctx, "Config", existing.DocID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// parseConfigEntries decodes Config documents from response data.
func parseConfigEntries(data map[string]any) ([]Entry, error) {
	raw, ok := data["Config"]
	if !ok {
		return nil, nil
	}
	docs, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected Config type: %T", raw)
	}

	entries := make([]Entry, 0, len(docs))
	for i, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			slog.Warn("skipping malformed config document", "index", i, "type", fmt.Sprintf("%T", d))
			continue
		}
		entries = append(entries, decodeEntry(doc))
	}
	return entries, nil
}

func decodeEntry(doc map[string]any) Entry {
	entry := Entry{
		DocID:       getString(doc, "_docID"),
		Key:         getString(doc, "name"),
		Description: getString(doc, "description"),
	}

	raw, ok := doc["value"].(string)
	if !ok {
		entry.Value = doc["value"]
		return entry
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// Legacy entries written before JSON encoding stay raw.
		slog.Debug("config value is not valid JSON, using as raw string", "key", entry.Key, "error", err)
		entry.Value = raw
		return entry
	}
	entry.Value = parsed
	return entry
}

// StoreToProviderRegistryConfig builds a provider registry config from
// the store, resolving ${ENV_VAR} references in API keys.
func StoreToProviderRegistryConfig(ctx context.Context, store Store) (providers.RegistryConfig, error) {
	cfg := providers.RegistryConfig{
		TTSProviders: make(map[string]providers.TTSProviderConfig),
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		return cfg, fmt.Errorf("failed to get config: %w", err)
	}

	if def, ok := all["defaults.tts_provider"]; ok {
		if name, ok := def.Value.(string); ok {
			cfg.Primary = name
		}
	}

	for name, fields := range extractProviders(all, "providers.tts.") {
		cfg.TTSProviders[name] = providers.TTSProviderConfig{
			Type:      getString(fields, "type"),
			Model:     getString(fields, "model"),
			Voice:     getString(fields, "voice"),
			APIKey:    ResolveEnvVars(getString(fields, "api_key")),
			RateLimit: getFloat(fields, "rate_limit"),
			Enabled:   getBool(fields, "enabled"),
		}
	}

	return cfg, nil
}

// extractProviders groups dotted keys by provider name, so that
// "providers.tts.openai.type" lands under openai as {type: value}.
func extractProviders(entries map[string]Entry, prefix string) map[string]map[string]any {
	result := make(map[string]map[string]any)
	for key, entry := range entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(key, prefix), ".", 2)
		if len(parts) != 2 {
			continue
		}
		name, field := parts[0], parts[1]
		if result[name] == nil {
			result[name] = make(map[string]any)
		}
		result[name][field] = entry.Value
	}
	return result
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
