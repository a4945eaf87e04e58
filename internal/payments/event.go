// Package payments is the boundary to the hosted checkout provider:
// webhook signature verification, event parsing, and session lookup
// for the self-healing read path.
package payments

import (
	"encoding/json"
	"fmt"
)

// EventCheckoutCompleted is the only event type fulfillment acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// CheckoutEvent is the parsed form of a checkout webhook delivery.
type CheckoutEvent struct {
	Type          string
	SessionID     string
	CustomerEmail string
	Metadata      map[string]string
}

// Completed reports whether this event marks a finished checkout.
func (e *CheckoutEvent) Completed() bool {
	return e.Type == EventCheckoutCompleted
}

type eventEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object sessionPayload `json:"object"`
	} `json:"data"`
}

type sessionPayload struct {
	ID              string            `json:"id"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
}

// ParseCheckoutEvent decodes a webhook payload. The customer email is
// taken from customer_details when present, falling back to the
// session-level field.
func ParseCheckoutEvent(payload []byte) (*CheckoutEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("webhook payload missing event type")
	}

	obj := env.Data.Object
	email := obj.CustomerEmail
	if obj.CustomerDetails != nil && obj.CustomerDetails.Email != "" {
		email = obj.CustomerDetails.Email
	}

	evt := &CheckoutEvent{
		Type:          env.Type,
		SessionID:     obj.ID,
		CustomerEmail: email,
		Metadata:      obj.Metadata,
	}
	if evt.Completed() && evt.SessionID == "" {
		return nil, fmt.Errorf("checkout event missing session id")
	}
	return evt, nil
}
