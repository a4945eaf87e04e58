// Package notify sends customer email through the Resend API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
)

const (
	// APIBaseURL is the Resend REST endpoint.
	APIBaseURL = "https://api.resend.com"

	// DefaultFrom is the sender identity for customer mail.
	DefaultFrom = "Santa <santa@santagram.app>"
)

// Config holds Resend client configuration.
type Config struct {
	APIKey     string
	From       string        // defaults to DefaultFrom
	BaseURL    string        // defaults to APIBaseURL
	Timeout    time.Duration // defaults to 30s
	HTTPClient *http.Client
}

// Client sends transactional email via Resend.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Resend email client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("notify client requires an API key")
	}
	if config.From == "" {
		config.From = DefaultFrom
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

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendVideoReady emails the customer a link to the finished video.
// Returns the Resend message id.
func (c *Client) SendVideoReady(ctx context.Context, to, childName, videoURL string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("recipient email is required")
	}
	if videoURL == "" {
		return "", fmt.Errorf("video url is required")
	}

	req := sendRequest{
		From:    c.config.From,
		To:      []string{to},
		Subject: fmt.Sprintf("🎅 Santa's Special Message for %s is Ready!", childName),
		HTML:    videoReadyHTML(childName, videoURL),
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, payload sendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("email send returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var sent sendResponse
	if err := json.Unmarshal(respBody, &sent); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return sent.ID, nil
}

// videoReadyHTML renders the notification body. Inline styles only;
// email clients strip stylesheets.
func videoReadyHTML(childName, videoURL string) string {
	name := html.EscapeString(childName)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; background-color: #1a472a; font-family: Arial, sans-serif;">
    <table width="100%%" cellpadding="0" cellspacing="0" style="max-width: 600px; margin: 0 auto; background-color: #0d2818; border-radius: 16px; overflow: hidden;">
        <tr>
            <td style="padding: 40px 30px; text-align: center;">
                <h1 style="color: #ffd700; font-size: 32px; margin: 0 0 20px 0;">
                    🎅 Ho Ho Ho! 🎄
                </h1>
                <p style="color: #ffffff; font-size: 18px; line-height: 1.6; margin: 0 0 30px 0;">
                    Santa has prepared a magical personalized video message just for <strong style="color: #ffd700;">%s</strong>!
                </p>

                <a href="%s"
                   style="display: inline-block; background: linear-gradient(135deg, #c41e3a 0%%, #8b0000 100%%); color: #ffffff; text-decoration: none; padding: 16px 40px; border-radius: 50px; font-size: 18px; font-weight: bold; box-shadow: 0 4px 15px rgba(196, 30, 58, 0.4);">
                    🎁 Download Your Video
                </a>

                <p style="color: #a0a0a0; font-size: 14px; margin: 30px 0 0 0;">
                    This magical message was created especially for %s.<br>
                    Merry Christmas from Santa and all the elves! ✨
                </p>
            </td>
        </tr>
    </table>
</body>
</html>`, name, html.EscapeString(videoURL), name)
}
