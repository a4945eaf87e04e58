package config

// Config holds santagram configuration.
// Stored at: ~/.santagram/config.yaml
type Config struct {
	TTSProviders map[string]TTSProviderCfg `mapstructure:"tts_providers" yaml:"tts_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
	Replicate    ReplicateCfg              `mapstructure:"replicate" yaml:"replicate"`
	Runpod       RunpodCfg                 `mapstructure:"runpod" yaml:"runpod"`
	Payments     PaymentsCfg               `mapstructure:"payments" yaml:"payments"`
	Email        EmailCfg                  `mapstructure:"email" yaml:"email"`
	Fulfillment  FulfillmentCfg            `mapstructure:"fulfillment" yaml:"fulfillment"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	Defra        DefraConfig               `mapstructure:"defra" yaml:"defra"`
}

// TTSProviderCfg configures a text-to-speech provider.
type TTSProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "elevenlabs", "openai"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	Voice     string  `mapstructure:"voice" yaml:"voice"`           // Voice ID
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	TTSProvider string `mapstructure:"tts_provider" yaml:"tts_provider"` // Provider used for synthesis
}

// StorageCfg holds Cloudflare R2 settings.
type StorageCfg struct {
	AccountID string `mapstructure:"account_id" yaml:"account_id"` // Supports ${ENV_VAR} syntax
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // Derived from AccountID when empty
	AccessKey string `mapstructure:"access_key" yaml:"access_key"` // Supports ${ENV_VAR} syntax
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"` // Supports ${ENV_VAR} syntax
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	PublicURL string `mapstructure:"public_url" yaml:"public_url"` // Public bucket base URL, no trailing slash
}
// ReplicateCfg holds Replicate lip-sync settings.
type ReplicateCfg struct {
	APIToken     string `mapstructure:"api_token" yaml:"api_token"` // Supports ${ENV_VAR} syntax
	Model        string `mapstructure:"model" yaml:"model"`
	HeroVideoURL string `mapstructure:"hero_video_url" yaml:"hero_video_url"`
}

// RunpodCfg holds RunPod serverless worker settings.
type RunpodCfg struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	EndpointID string `mapstructure:"endpoint_id" yaml:"endpoint_id"`
}

// PaymentsCfg holds Stripe settings.
type PaymentsCfg struct {
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`               // Supports ${ENV_VAR} syntax
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"` // Supports ${ENV_VAR} syntax
}

// EmailCfg holds Resend settings.
type EmailCfg struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	From   string `mapstructure:"from" yaml:"from"`
}

// FulfillmentCfg tunes the order pipeline.
type FulfillmentCfg struct {
	// MaxChunkSeconds is the single-vs-chunked threshold and the split
	// chunk length.
	MaxChunkSeconds int `mapstructure:"max_chunk_seconds" yaml:"max_chunk_seconds"`
	// UsePipeline routes long audio to the serverless full pipeline.
	UsePipeline bool `mapstructure:"use_pipeline" yaml:"use_pipeline"`
	// WebhookBaseURL is this server's externally reachable base URL
	// for worker callbacks.
	WebhookBaseURL string `mapstructure:"webhook_base_url" yaml:"webhook_base_url"`
	// PollIntervalSeconds between background status checks.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// PollMaxAttempts bounds background continuation loops.
	PollMaxAttempts int `mapstructure:"poll_max_attempts" yaml:"poll_max_attempts"`
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: santagram-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTSProviders: map[string]TTSProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "tts-1-hd",
				Voice:     "onyx",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 8.0,
				Enabled:   true,
			},
			"elevenlabs": {
				Type:      "elevenlabs",
				Model:     "eleven_turbo_v2_5",
				APIKey:    "${ELEVENLABS_API_KEY}",
				RateLimit: 10.0,
				Enabled:   false,
			},
		},
		Defaults: DefaultsCfg{
			TTSProvider: "openai",
		},
		Storage: StorageCfg{
			AccountID: "${R2_ACCOUNT_ID}",
			AccessKey: "${R2_ACCESS_KEY_ID}",
			SecretKey: "${R2_SECRET_ACCESS_KEY}",
			Bucket:    "santagram",
		},
		Replicate: ReplicateCfg{
			APIToken: "${REPLICATE_API_TOKEN}",
			Model:    "kwaivgi/kling-lip-sync",
		},
		Runpod: RunpodCfg{
			APIKey: "${RUNPOD_API_KEY}",
		},
		Payments: PaymentsCfg{
			APIKey:        "${STRIPE_SECRET_KEY}",
			WebhookSecret: "${STRIPE_WEBHOOK_SECRET}",
		},
		Email: EmailCfg{
			APIKey: "${RESEND_API_KEY}",
			From:   "Santa <santa@santagram.app>",
		},
		Fulfillment: FulfillmentCfg{
			MaxChunkSeconds:     25,
			PollIntervalSeconds: 5,
			PollMaxAttempts:     120,
		},
		Server: ServerCfg{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Defra: DefraConfig{
			ContainerName: "santagram-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
	}
}

// GetTTSProvider returns a TTS provider config by name.
func (c *Config) GetTTSProvider(name string) (TTSProviderCfg, bool) {
	cfg, ok := c.TTSProviders[name]
	return cfg, ok
}

// EnabledTTSProviders returns all enabled TTS providers.
func (c *Config) EnabledTTSProviders() map[string]TTSProviderCfg {
	result := make(map[string]TTSProviderCfg)
	for name, cfg := range c.TTSProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
