package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/runpod"
	"github.com/santagram/santagram/internal/svcctx"
)

// runpodWebhookPayload mirrors RunPod's job status delivery.
type runpodWebhookPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		VideoURL string `json:"video_url"`
	} `json:"output"`
	Error string `json:"error"`
}

// RunpodWebhookEndpoint handles POST /api/webhooks/runpod. Pipeline
// jobs carry their order's document ID in the webhook URL query, so
// the handler never has to search job IDs in the store.
type RunpodWebhookEndpoint struct{}

func (e *RunpodWebhookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/webhooks/runpod", e.handler
}

func (e *RunpodWebhookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		RunPod webhook
//	@Description	Pipeline job callback; records the finished video or the failure
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			order_id	query		string	true	"Order document ID"
//	@Success		200			{object}	WebhookAck
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/webhooks/runpod [post]
func (e *RunpodWebhookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	logger := svcctx.LoggerFrom(r.Context())

	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	var payload runpodWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	manager := svcctx.FulfillmentFrom(r.Context())
	if manager == nil {
		writeError(w, http.StatusServiceUnavailable, "fulfillment not initialized")
		return
	}

	logger.Info("runpod webhook received",
		"order_id", orderID, "job_id", payload.ID, "status", payload.Status)

	switch payload.Status {
	case runpod.StateCompleted:
		if payload.Output.VideoURL == "" {
			writeError(w, http.StatusBadRequest, "completed job missing video_url")
			return
		}
		if _, err := manager.Complete(r.Context(), orderID, payload.Output.VideoURL); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			logger.Error("failed to complete order from webhook", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record completion")
			return
		}
	case runpod.StateFailed, runpod.StateCanceled:
		cause := fmt.Errorf("job %s: %s", payload.ID, payload.Error)
		if _, err := manager.Fail(r.Context(), orderID, "generation", cause); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			logger.Error("failed to record order failure from webhook", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record failure")
			return
		}
	default:
		// Progress notifications require no state change.
	}

	writeJSON(w, http.StatusOK, WebhookAck{Received: true})
}

func (e *RunpodWebhookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return nil
}
