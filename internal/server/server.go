package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/config"
	"github.com/santagram/santagram/internal/defra"
	"github.com/santagram/santagram/internal/fulfillment"
	"github.com/santagram/santagram/internal/lipsync"
	"github.com/santagram/santagram/internal/notify"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/payments"
	"github.com/santagram/santagram/internal/providers"
	"github.com/santagram/santagram/internal/runpod"
	"github.com/santagram/santagram/internal/schema"
	"github.com/santagram/santagram/internal/server/endpoints"
	"github.com/santagram/santagram/internal/speech"
	"github.com/santagram/santagram/internal/storage"
	"github.com/santagram/santagram/internal/svcctx"
)

// Server is the main Santagram HTTP server.
// It manages the DefraDB container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	fulfillment  *fulfillment.Manager
	registry     *providers.Registry
	configMgr    *config.Manager
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DefraDataPath is the path to persist DefraDB data
	DefraDataPath string
	// DefraConfig holds DefraDB container settings
	DefraConfig defra.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// SwaggerSpecPath is the path to the generated OpenAPI spec
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Set up DefraDB data path
	if cfg.DefraDataPath != "" {
		cfg.DefraConfig.DataPath = cfg.DefraDataPath
	}

	defraManager, err := defra.NewDockerManager(cfg.DefraConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	// Create TTS provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		defraManager: defraManager,
		registry:     registry,
		configMgr:    cfg.ConfigManager,
		logger:       cfg.Logger,
	}

	s.endpointRegistry = api.NewRegistry()
	s.endpointRegistry.Register(endpoints.All(endpoints.Config{
		DefraManager:    defraManager,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	})...)

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and DefraDB.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Validate any existing container matches our config
	if err := s.defraManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing DefraDB container incompatible: %w", err)
	}

	// Start DefraDB
	s.logger.Info("starting DefraDB")
	if err := s.defraManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	// Create client after DefraDB is up
	s.defraClient = defra.NewClient(s.defraManager.URL())

	// Verify DefraDB is healthy
	if err := s.defraClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown() // Clean up DefraDB on failure
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

	// Initialize schemas
	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	if err := s.buildServices(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("service initialization failed: %w", err)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown() // Clean up DefraDB on HTTP error
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices constructs the order store, external clients, and the
// fulfillment manager once DefraDB is reachable. External clients that
// lack credentials are left nil; their endpoints answer 503 until the
// config is completed.
func (s *Server) buildServices(ctx context.Context) error {
	orderStore := orders.NewStore(s.defraClient, s.logger)

	configStore := config.NewStore(s.defraClient)
	if err := config.SeedDefaults(ctx, configStore, s.logger); err != nil {
		return fmt.Errorf("failed to seed config defaults: %w", err)
	}

	appCfg := config.DefaultConfig()
	if s.configMgr != nil {
		appCfg = s.configMgr.Get()
	}

	services := &svcctx.Services{
		DefraClient: s.defraClient,
		OrderStore:  orderStore,
		Registry:    s.registry,
		ConfigStore: configStore,
		Config:      s.configMgr,
		Logger:      s.logger,
	}

	if key := config.ResolveEnvVars(appCfg.Payments.APIKey); key != "" {
		payClient, err := payments.NewClient(payments.Config{APIKey: key})
		if err != nil {
			return fmt.Errorf("failed to create payments client: %w", err)
		}
		services.Payments = payClient
	} else {
		s.logger.Warn("payments API key not configured; session recovery disabled")
	}

	manager, err := s.buildFulfillment(appCfg, orderStore, services)
	if err != nil {
		s.logger.Warn("fulfillment disabled", "reason", err)
	} else {
		s.fulfillment = manager
		services.Fulfillment = manager
	}

	s.services = services
	return nil
}

// buildFulfillment wires the generation engine from config. Returns an
// error naming the first missing credential.
func (s *Server) buildFulfillment(appCfg *config.Config, orderStore *orders.Store, services *svcctx.Services) (*fulfillment.Manager, error) {
	st := appCfg.Storage
	accountID := config.ResolveEnvVars(st.AccountID)
	accessKey := config.ResolveEnvVars(st.AccessKey)
	secretKey := config.ResolveEnvVars(st.SecretKey)
	endpoint := config.ResolveEnvVars(st.Endpoint)
	if endpoint == "" && accountID != "" {
		endpoint = "https://" + accountID + ".r2.cloudflarestorage.com"
	}
	if accessKey == "" || secretKey == "" || endpoint == "" {
		return nil, errors.New("storage credentials not configured")
	}

	store, err := storage.New(storage.Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    st.Bucket,
		PublicURL: st.PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	replicateToken := config.ResolveEnvVars(appCfg.Replicate.APIToken)
	if replicateToken == "" {
		return nil, errors.New("replicate API token not configured")
	}
	ls := lipsync.New(lipsync.Config{
		APIToken:     replicateToken,
		Model:        appCfg.Replicate.Model,
		HeroVideoURL: appCfg.Replicate.HeroVideoURL,
	})

	webhookURL := ""
	if base := strings.TrimSuffix(appCfg.Fulfillment.WebhookBaseURL, "/"); base != "" {
		webhookURL = base + "/api/webhooks/runpod"
	}

	runpodKey := config.ResolveEnvVars(appCfg.Runpod.APIKey)
	if runpodKey == "" {
		return nil, errors.New("runpod API key not configured")
	}
	runner, err := runpod.New(runpod.Config{
		APIKey:         runpodKey,
		EndpointID:     appCfg.Runpod.EndpointID,
		ReplicateToken: replicateToken,
		HeroVideoURL:   appCfg.Replicate.HeroVideoURL,
		WebhookURL:     webhookURL,
		R2: runpod.R2Credentials{
			AccountID:       accountID,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			Bucket:          st.Bucket,
			PublicURL:       st.PublicURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runpod client: %w", err)
	}

	emailKey := config.ResolveEnvVars(appCfg.Email.APIKey)
	if emailKey == "" {
		return nil, errors.New("email API key not configured")
	}
	mailer, err := notify.NewClient(notify.Config{
		APIKey: emailKey,
		From:   appCfg.Email.From,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create email client: %w", err)
	}
	services.Mailer = mailer

	synth := &registrySpeech{registry: s.registry, store: store, logger: s.logger}

	engine := fulfillment.New(orderStore, synth, ls, runner, store, mailer, fulfillment.Config{
		MaxChunkSeconds: appCfg.Fulfillment.MaxChunkSeconds,
		UsePipeline:     appCfg.Fulfillment.UsePipeline,
		WebhookURL:      webhookURL,
		PollInterval:    appCfg.Fulfillment.PollInterval(),
		PollMaxAttempts: appCfg.Fulfillment.PollMaxAttempts,
	}, s.logger)

	return fulfillment.NewManager(engine, s.logger), nil
}

// registrySpeech resolves the primary TTS provider at call time so
// config reloads take effect without a server restart.
type registrySpeech struct {
	registry *providers.Registry
	store    speech.Store
	logger   *slog.Logger
}

func (r *registrySpeech) Synthesize(ctx context.Context, script string) (string, error) {
	provider, err := r.registry.Primary()
	if err != nil {
		return "", fmt.Errorf("no TTS provider available: %w", err)
	}
	return speech.New(provider, r.store, r.logger).Synthesize(ctx, script)
}

// shutdown performs graceful shutdown of the HTTP server, in-flight
// fulfillment work, and DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Let background continuations finish their current transition
	if s.fulfillment != nil {
		s.logger.Info("waiting for fulfillment continuations")
		s.fulfillment.Wait()
	}

	// Stop DefraDB
	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	// Close Docker client
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	return s.defraClient
}

// Fulfillment returns the fulfillment manager.
// Returns nil if the server hasn't started yet or fulfillment is disabled.
func (s *Server) Fulfillment() *fulfillment.Manager {
	return s.fulfillment
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the TTS provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until DefraDB and the stores are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.defraClient == nil || s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
