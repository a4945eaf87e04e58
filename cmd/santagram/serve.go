package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/config"
	"github.com/santagram/santagram/internal/defra"
	"github.com/santagram/santagram/internal/home"
	"github.com/santagram/santagram/internal/server"
	"github.com/santagram/santagram/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Santagram server",
	Long: `Start the Santagram HTTP server.

This starts both the HTTP API server and the DefraDB container.
When the server shuts down (via Ctrl+C or SIGTERM), DefraDB is also stopped.

The server provides:
  - /health            - Basic server health check
  - /ready             - Readiness check (includes DefraDB status)
  - /api/orders        - Order creation and lookup
  - /api/video-status  - Customer-facing generation status
  - /api/webhooks/*    - Payment and worker callbacks

Examples:
  santagram serve                    # Start on default port 8080
  santagram serve --port 3000        # Start on custom port
  santagram serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// First run writes a starter config the user can edit
		configFile := cfgFile
		if configFile == "" {
			configFile = h.ConfigPath()
			if !h.ConfigExists() {
				if err := config.WriteDefault(configFile); err != nil {
					return fmt.Errorf("failed to write default config: %w", err)
				}
				logger.Info("wrote default config", "path", configFile)
			}
		}

		cfgMgr, err := config.NewManager(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfgMgr.WatchConfig()

		appCfg := cfgMgr.Get()

		// Flags beat config
		host := serveHost
		if !cmd.Flags().Changed("host") && appCfg.Server.Host != "" {
			host = appCfg.Server.Host
		}
		port := servePort
		if !cmd.Flags().Changed("port") && appCfg.Server.Port != 0 {
			port = strconv.Itoa(appCfg.Server.Port)
		}

		// Ensure defradb data directory exists
		defraDataPath := filepath.Join(h.Path(), "defradb")
		if err := os.MkdirAll(defraDataPath, 0755); err != nil {
			return err
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			DefraDataPath: defraDataPath,
			DefraConfig: defra.DockerConfig{
				ContainerName: appCfg.Defra.ContainerName,
				Image:         appCfg.Defra.Image,
				HostPort:      appCfg.Defra.Port,
			},
			ConfigManager:   cfgMgr,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
