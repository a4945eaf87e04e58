package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIBaseURL is the checkout provider's REST endpoint.
const APIBaseURL = "https://api.stripe.com/v1"

// PaymentStatusPaid is the session payment_status for a settled checkout.
const PaymentStatusPaid = "paid"

// Session is a checkout session fetched from the provider. The read
// path uses it to reconstruct orders when the webhook never landed.
type Session struct {
	ID            string
	PaymentStatus string
	CustomerEmail string
	Metadata      map[string]string
}

// Paid reports whether the session's payment settled.
func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// Config holds checkout API client configuration.
type Config struct {
	APIKey     string
	BaseURL    string        // defaults to APIBaseURL
	Timeout    time.Duration // defaults to 30s
	HTTPClient *http.Client
}

// Client fetches checkout sessions from the provider API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a checkout API client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("payments client requires an API key")
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{config: config, httpClient: httpClient}, nil
}

// GetSession fetches a checkout session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id")
	}

	url := fmt.Sprintf("%s/checkout/sessions/%s", c.config.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session fetch returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	email := payload.CustomerEmail
	if payload.CustomerDetails != nil && payload.CustomerDetails.Email != "" {
		email = payload.CustomerDetails.Email
	}

	return &Session{
		ID:            payload.ID,
		PaymentStatus: payload.PaymentStatus,
		CustomerEmail: email,
		Metadata:      payload.Metadata,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
