package endpoints

import (
	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager    *defra.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Order endpoints
		&CreateOrderEndpoint{},
		&GetOrderEndpoint{},
		&GenerateOrderEndpoint{},
		&VideoStatusEndpoint{},

		// Webhook endpoints
		&PaymentWebhookEndpoint{},
		&RunpodWebhookEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
		&VoicesEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}

// OrderCommands groups order operations under an "orders" subcommand.
func OrderCommands() []api.Endpoint {
	return []api.Endpoint{
		&CreateOrderEndpoint{},
		&GetOrderEndpoint{},
		&GenerateOrderEndpoint{},
	}
}

// SettingsCommands groups settings operations under a "settings" subcommand.
func SettingsCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}
