package providers

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds references to TTS providers. It supports
// config-driven instantiation, hot-reload, and thread-safe access.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]TTSProvider
	primary   string
	logger    *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]TTSProvider),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a TTS provider by name.
func (r *Registry) Register(name string, provider TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	if r.logger != nil {
		r.logger.Info("registered TTS provider", "name", name)
	}
}

// Unregister removes a TTS provider by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	if r.logger != nil {
		r.logger.Info("unregistered TTS provider", "name", name)
	}
}

// Get returns a TTS provider by name.
func (r *Registry) Get(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}
	return provider, nil
}

// Primary returns the provider orders are synthesized with. Falls
// back to any registered provider when the configured primary is
// missing.
func (r *Registry) Primary() (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[r.primary]; ok {
		return p, nil
	}
	for _, p := range r.providers {
		return p, nil
	}
	return nil, fmt.Errorf("no TTS providers registered")
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Has checks if a TTS provider is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// Primary names the provider used for order synthesis.
	Primary string

	// TTSProviders maps provider names to their config.
	TTSProviders map[string]TTSProviderConfig
}

// TTSProviderConfig matches config.TTSProviderCfg with resolved API key.
type TTSProviderConfig struct {
	Type      string  // "elevenlabs", "openai"
	Model     string  // Model name
	Voice     string  // Default voice ID
	APIKey    string  // Resolved API key
	RateLimit float64 // Requests per second
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on
// configuration. Only enabled providers with valid API keys will be
// registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.primary = cfg.Primary
	r.applyConfig(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.primary = cfg.Primary

	want := make(map[string]bool)
	for name, provCfg := range cfg.TTSProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		want[name] = true

		existing, hasExisting := r.providers[name]
		if !hasExisting || needsUpdate(existing, provCfg) {
			provider := createTTSProvider(provCfg)
			if provider != nil {
				r.providers[name] = provider
				if r.logger != nil {
					if hasExisting {
						r.logger.Info("updated TTS provider", "name", name, "type", provCfg.Type)
					} else {
						r.logger.Info("registered TTS provider", "name", name, "type", provCfg.Type)
					}
				}
			}
		}
	}

	for name := range r.providers {
		if !want[name] {
			delete(r.providers, name)
			if r.logger != nil {
				r.logger.Info("unregistered TTS provider", "name", name)
			}
		}
	}
}

// applyConfig applies configuration without locking (used during init).
func (r *Registry) applyConfig(cfg RegistryConfig) {
	for name, provCfg := range cfg.TTSProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		provider := createTTSProvider(provCfg)
		if provider != nil {
			r.providers[name] = provider
		}
	}
}

// createTTSProvider creates a TTS provider based on provider type.
func createTTSProvider(cfg TTSProviderConfig) TTSProvider {
	switch cfg.Type {
	case "elevenlabs":
		return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			RateLimit: cfg.RateLimit,
		})
	case "openai":
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil
	}
}

// needsUpdate checks if a TTS provider needs to be recreated.
func needsUpdate(provider TTSProvider, cfg TTSProviderConfig) bool {
	switch p := provider.(type) {
	case *ElevenLabsTTSClient:
		return p.cfg.APIKey != cfg.APIKey ||
			(cfg.Model != "" && p.cfg.Model != cfg.Model) ||
			(cfg.Voice != "" && p.cfg.Voice != cfg.Voice) ||
			(cfg.RateLimit != 0 && p.cfg.RateLimit != cfg.RateLimit)
	case *OpenAITTSClient:
		return p.cfg.APIKey != cfg.APIKey ||
			(cfg.Model != "" && p.cfg.Model != cfg.Model) ||
			(cfg.Voice != "" && p.cfg.Voice != cfg.Voice) ||
			(cfg.RateLimit != 0 && p.cfg.RateLimit != cfg.RateLimit)
	default:
		return true
	}
}
