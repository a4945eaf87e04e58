package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.TTSProviders) == 0 {
		t.Error("expected default TTS providers")
	}
	openai, ok := cfg.GetTTSProvider("openai")
	if !ok {
		t.Fatal("expected openai TTS provider")
	}
	if openai.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if !openai.Enabled {
		t.Error("expected openai enabled by default")
	}
	if cfg.Defaults.TTSProvider != "openai" {
		t.Errorf("default TTS provider = %q", cfg.Defaults.TTSProvider)
	}
	if cfg.Fulfillment.MaxChunkSeconds != 25 {
		t.Errorf("max_chunk_seconds = %d", cfg.Fulfillment.MaxChunkSeconds)
	}
	if cfg.Defra.ContainerName != "santagram-defra" {
		t.Errorf("container name = %q", cfg.Defra.ContainerName)
	}
}

func TestEnabledTTSProviders(t *testing.T) {
	cfg := DefaultConfig()
	enabled := cfg.EnabledTTSProviders()
	if _, ok := enabled["openai"]; !ok {
		t.Error("expected openai in enabled providers")
	}
	if _, ok := enabled["elevenlabs"]; ok {
		t.Error("elevenlabs should be disabled by default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	os.Setenv("TEST_TTS_KEY", "tts-key-123")
	defer os.Unsetenv("TEST_TTS_KEY")

	cfg := &Config{
		TTSProviders: map[string]TTSProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "tts-1-hd",
				Voice:     "onyx",
				APIKey:    "${TEST_TTS_KEY}",
				RateLimit: 8.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{TTSProvider: "openai"},
	}

	reg := cfg.ToProviderRegistryConfig()
	if reg.Primary != "openai" {
		t.Errorf("primary = %q", reg.Primary)
	}
	got, ok := reg.TTSProviders["openai"]
	if !ok {
		t.Fatal("expected openai provider config")
	}
	if got.APIKey != "tts-key-123" {
		t.Errorf("api key not resolved: %q", got.APIKey)
	}
	if got.Voice != "onyx" || got.Model != "tts-1-hd" {
		t.Errorf("provider config = %+v", got)
	}
}

func TestFulfillmentPollInterval(t *testing.T) {
	if got := (FulfillmentCfg{PollIntervalSeconds: 10}).PollInterval(); got != 10*time.Second {
		t.Errorf("PollInterval() = %v", got)
	}
	if got := (FulfillmentCfg{}).PollInterval(); got != 5*time.Second {
		t.Errorf("zero PollInterval() = %v, want 5s default", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
fulfillment:
  max_chunk_seconds: 30
  use_pipeline: true
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Fulfillment.MaxChunkSeconds != 30 {
			t.Errorf("max_chunk_seconds = %d, want 30", cfg.Fulfillment.MaxChunkSeconds)
		}
		if !cfg.Fulfillment.UsePipeline {
			t.Error("use_pipeline not loaded")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Server.Port
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().Server.Port; got != 8080 {
		t.Errorf("initial port = %d", got)
	}

	var callbackCount atomic.Int32
	var lastPort atomic.Int32

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastPort.Store(int32(cfg.Server.Port))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("server:\n  port: 9090\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}
	if got := mgr.Get().Server.Port; got != 9090 {
		t.Errorf("config not updated: port = %d", got)
	}
	if got := lastPort.Load(); got != 9090 {
		t.Errorf("callback received port %d", got)
	}
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	content := string(data)
	for _, want := range []string{"tts_providers", "fulfillment", "${OPENAI_API_KEY}"} {
		if !strings.Contains(content, want) {
			t.Errorf("written config missing %q", want)
		}
	}
}
