// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/santagram/santagram/internal/config"
	"github.com/santagram/santagram/internal/defra"
	"github.com/santagram/santagram/internal/fulfillment"
	"github.com/santagram/santagram/internal/home"
	"github.com/santagram/santagram/internal/notify"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/payments"
	"github.com/santagram/santagram/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DefraClient *defra.Client
	OrderStore  *orders.Store
	Fulfillment *fulfillment.Manager
	Registry    *providers.Registry
	Payments    *payments.Client
	Mailer      *notify.Client
	ConfigStore config.Store
	Config      *config.Manager
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// OrderStoreFrom extracts the order store from context.
func OrderStoreFrom(ctx context.Context) *orders.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.OrderStore
	}
	return nil
}

// FulfillmentFrom extracts the fulfillment manager from context.
func FulfillmentFrom(ctx context.Context) *fulfillment.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Fulfillment
	}
	return nil
}

// RegistryFrom extracts the TTS provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// PaymentsFrom extracts the checkout API client from context.
func PaymentsFrom(ctx context.Context) *payments.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Payments
	}
	return nil
}

// MailerFrom extracts the email client from context.
func MailerFrom(ctx context.Context) *notify.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Mailer
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigStoreFrom extracts the config store from context.
func ConfigStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigStore
	}
	return nil
}

// ConfigManagerFrom extracts the file config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}
