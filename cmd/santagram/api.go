package main

import (
	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Santagram server via HTTP.

These commands require a running server (santagram serve).
Use --server to specify a custom server URL.

Examples:
  santagram api health                 # Check server health
  santagram api orders create          # Create a pending order
  santagram api orders get <id>        # Get a specific order
  santagram api orders generate <id>   # Trigger video generation`,
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Order management commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Configuration settings commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Video status at top level; it is what the status page polls
	apiCmd.AddCommand((&endpoints.VideoStatusEndpoint{}).Command(getServerURL))

	// Voice catalog of the configured TTS providers
	apiCmd.AddCommand((&endpoints.VoicesEndpoint{}).Command(getServerURL))

	// Orders as subcommand group
	for _, ep := range endpoints.OrderCommands() {
		ordersCmd.AddCommand(ep.Command(getServerURL))
	}

	// Settings as subcommand group
	for _, ep := range endpoints.SettingsCommands() {
		settingsCmd.AddCommand(ep.Command(getServerURL))
	}

	// Swagger spec fetch
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(ordersCmd)
	apiCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(apiCmd)
}
