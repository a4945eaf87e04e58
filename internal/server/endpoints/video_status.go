package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/svcctx"
)

// VideoStatusResponse is what the order status page polls for.
type VideoStatusResponse struct {
	Status    string `json:"status"`
	ChildName string `json:"child_name,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// VideoStatusEndpoint handles GET /api/video-status. It is the
// customer-facing poll target: it looks the order up by checkout
// session, reconstructs the order from the provider session when the
// webhook never landed, and nudges generation forward on every call.
type VideoStatusEndpoint struct{}

func (e *VideoStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/video-status", e.handler
}

func (e *VideoStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Video status by checkout session
//	@Description	Poll generation status for the order tied to a checkout session
//	@Tags			orders
//	@Produce		json
//	@Param			session_id	query		string	true	"Checkout session ID"
//	@Success		200			{object}	VideoStatusResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/video-status [get]
func (e *VideoStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	store := svcctx.OrderStoreFrom(r.Context())
	manager := svcctx.FulfillmentFrom(r.Context())
	if store == nil || manager == nil {
		writeError(w, http.StatusServiceUnavailable, "fulfillment not initialized")
		return
	}

	order, err := store.GetBySessionID(r.Context(), sessionID)
	if errors.Is(err, orders.ErrNotFound) {
		order, err = e.recoverOrder(r.Context(), sessionID)
	}
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A poll is also a trigger: advance once so a stalled order moves
	// even if every background loop died, then make sure a
	// continuation is running. Advance errors must not break the
	// status page; the stored order is still authoritative.
	if !order.Status.Terminal() {
		logger := svcctx.LoggerFrom(r.Context())
		advanced, aerr := manager.Advance(r.Context(), order.DocID)
		if aerr != nil {
			logger.Warn("status poll advance failed", "doc_id", order.DocID, "error", aerr)
		} else {
			order = advanced
		}
		if !order.Status.Terminal() {
			manager.Kick(context.WithoutCancel(r.Context()), order.DocID)
		}
	}

	resp := VideoStatusResponse{Status: string(order.Status), ChildName: order.ChildName}
	switch order.Status {
	case orders.StatusCompleted:
		resp.VideoURL = order.VideoURL
	case orders.StatusFailed:
		resp.Error = order.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

// recoverOrder rebuilds a paid order from the checkout session when
// the payment webhook was never delivered.
func (e *VideoStatusEndpoint) recoverOrder(ctx context.Context, sessionID string) (*orders.Order, error) {
	payClient := svcctx.PaymentsFrom(ctx)
	store := svcctx.OrderStoreFrom(ctx)
	if payClient == nil {
		return nil, orders.ErrNotFound
	}

	session, err := payClient.GetSession(ctx, sessionID)
	if err != nil {
		return nil, orders.ErrNotFound
	}
	if !session.Paid() {
		return nil, orders.ErrNotFound
	}

	order := orderFromMetadata(sessionID, session.CustomerEmail, session.Metadata)
	order.Status = orders.StatusPaid

	docID, err := store.Create(ctx, order)
	if err != nil {
		// Lost a race with the webhook handler; re-read.
		return store.GetBySessionID(ctx, sessionID)
	}
	order.DocID = docID

	svcctx.LoggerFrom(ctx).Info("recovered order from checkout session",
		"session_id", sessionID, "doc_id", docID)
	return order, nil
}

// orderFromMetadata maps checkout session metadata onto a new order.
// The checkout page writes these keys when it creates the session.
func orderFromMetadata(sessionID, email string, md map[string]string) *orders.Order {
	order := &orders.Order{
		PaymentSessionID: sessionID,
		CustomerEmail:    email,
		ChildName:        md["childName"],
		ChildGender:      md["childGender"],
		Achievements:     md["achievements"],
		Interests:        md["interests"],
		SpecialMessage:   md["specialMessage"],
		MessageType:      md["messageType"],
	}
	if ageStr := md["childAge"]; ageStr != "" {
		if age, err := strconv.Atoi(ageStr); err == nil {
			order.ChildAge = &age
		}
	}
	return order
}

func (e *VideoStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "video-status <session-id>",
		Short: "Check video status for a checkout session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp VideoStatusResponse
			if err := client.Get(cmd.Context(), "/api/video-status?session_id="+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
