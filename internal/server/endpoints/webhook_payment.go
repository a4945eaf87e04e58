package endpoints

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/config"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/payments"
	"github.com/santagram/santagram/internal/svcctx"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// WebhookAck is the acknowledgement body for webhook deliveries.
type WebhookAck struct {
	Received bool `json:"received"`
}

// PaymentWebhookEndpoint handles POST /api/webhooks/payment. The
// checkout provider retries deliveries, so the handler must be safe
// to run any number of times for the same session.
type PaymentWebhookEndpoint struct{}

func (e *PaymentWebhookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/webhooks/payment", e.handler
}

func (e *PaymentWebhookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Payment webhook
//	@Description	Checkout provider callback; marks the order paid and starts generation
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	WebhookAck
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/webhooks/payment [post]
func (e *PaymentWebhookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	logger := svcctx.LoggerFrom(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	cfgMgr := svcctx.ConfigManagerFrom(r.Context())
	if cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "config not initialized")
		return
	}
	secret := config.ResolveEnvVars(cfgMgr.Get().Payments.WebhookSecret)

	if err := payments.VerifySignature(payload, r.Header.Get("Stripe-Signature"), secret, 0); err != nil {
		logger.Warn("rejected payment webhook", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := payments.ParseCheckoutEvent(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !event.Completed() {
		// Not an event we act on; acknowledge so the provider stops retrying.
		writeJSON(w, http.StatusOK, WebhookAck{Received: true})
		return
	}

	store := svcctx.OrderStoreFrom(r.Context())
	manager := svcctx.FulfillmentFrom(r.Context())
	if store == nil || manager == nil {
		writeError(w, http.StatusServiceUnavailable, "fulfillment not initialized")
		return
	}

	order, err := store.GetBySessionID(r.Context(), event.SessionID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		order = orderFromMetadata(event.SessionID, event.CustomerEmail, event.Metadata)
		order.Status = orders.StatusPaid
		docID, cerr := store.Create(r.Context(), order)
		if cerr != nil {
			logger.Error("failed to create order from webhook", "session_id", event.SessionID, "error", cerr)
			writeError(w, http.StatusInternalServerError, "failed to create order")
			return
		}
		order.DocID = docID
		logger.Info("created order from payment webhook", "session_id", event.SessionID, "doc_id", docID)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		// Only promote pending orders. Redeliveries for orders already
		// paid or further along must not reset their state.
		if order.Status == orders.StatusPending {
			if serr := store.SetStatus(r.Context(), order.DocID, orders.StatusPaid); serr != nil {
				writeError(w, http.StatusInternalServerError, serr.Error())
				return
			}
			if order.CustomerEmail == "" && event.CustomerEmail != "" {
				fields := map[string]any{"customer_email": event.CustomerEmail}
				if uerr := store.Update(r.Context(), order.DocID, fields); uerr != nil {
					logger.Warn("failed to backfill customer email", "doc_id", order.DocID, "error", uerr)
				}
			}
		}
	}

	manager.Kick(context.WithoutCancel(r.Context()), order.DocID)

	writeJSON(w, http.StatusOK, WebhookAck{Received: true})
}

func (e *PaymentWebhookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return nil
}
