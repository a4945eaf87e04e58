package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/santagram/santagram/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper seeds viper with section defaults, env overrides, and the
// config file when one exists.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	for section, value := range map[string]any{
		"tts_providers": defaults.TTSProviders,
		"defaults":      defaults.Defaults,
		"storage":       defaults.Storage,
		"replicate":     defaults.Replicate,
		"runpod":        defaults.Runpod,
		"payments":      defaults.Payments,
		"email":         defaults.Email,
		"fulfillment":   defaults.Fulfillment,
		"server":        defaults.Server,
		"defra":         defaults.Defra,
	} {
		viper.SetDefault(section, value)
	}

	viper.SetEnvPrefix("SANTAGRAM")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.santagram")
	}

	// A missing config file is fine, defaults and env cover it.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string. Unset
// variables expand to the empty string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Primary:      c.Defaults.TTSProvider,
		TTSProviders: make(map[string]providers.TTSProviderConfig),
	}

	for name, tts := range c.TTSProviders {
		cfg.TTSProviders[name] = providers.TTSProviderConfig{
			Type:      tts.Type,
			Model:     tts.Model,
			Voice:     tts.Voice,
			APIKey:    ResolveEnvVars(tts.APIKey),
			RateLimit: tts.RateLimit,
			Enabled:   tts.Enabled,
		}
	}

	return cfg
}

// PollInterval returns the background poll cadence as a duration.
func (f FulfillmentCfg) PollInterval() time.Duration {
	if f.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(f.PollIntervalSeconds) * time.Second
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Santagram configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx REPLICATE_API_TOKEN=xxx STRIPE_SECRET_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
