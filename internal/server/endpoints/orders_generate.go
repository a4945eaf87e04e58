package endpoints

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/svcctx"
)

// GenerateResponse is the response for triggering generation.
type GenerateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GenerateOrderEndpoint handles POST /api/orders/{id}/generate.
type GenerateOrderEndpoint struct{}

func (e *GenerateOrderEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/orders/{id}/generate", e.handler
}

func (e *GenerateOrderEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Trigger video generation
//	@Description	Start (or resume) the generation pipeline for an order
//	@Tags			orders
//	@Produce		json
//	@Param			id	path		string	true	"Order document ID"
//	@Success		202	{object}	GenerateResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/orders/{id}/generate [post]
func (e *GenerateOrderEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	store := svcctx.OrderStoreFrom(r.Context())
	manager := svcctx.FulfillmentFrom(r.Context())
	if store == nil || manager == nil {
		writeError(w, http.StatusServiceUnavailable, "fulfillment not initialized")
		return
	}

	order, err := store.GetByDocID(r.Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch order.Status {
	case orders.StatusCompleted:
		writeError(w, http.StatusConflict, "order already completed")
		return
	case orders.StatusGenerating:
		if !order.Job.IsZero() {
			writeError(w, http.StatusConflict, "generation already in progress")
			return
		}
	case orders.StatusPending:
		// Manual trigger implies payment is settled out of band.
		if err := store.SetStatus(r.Context(), order.DocID, orders.StatusPaid); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	// The continuation outlives this request.
	manager.Kick(context.WithoutCancel(r.Context()), order.DocID)

	writeJSON(w, http.StatusAccepted, GenerateResponse{ID: order.DocID, Status: "accepted"})
}

func (e *GenerateOrderEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <id>",
		Short: "Trigger video generation for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GenerateResponse
			if err := client.Post(cmd.Context(), "/api/orders/"+args[0]+"/generate", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
