package endpoints

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/svcctx"
)

// OrderResponse is the wire form of an order.
type OrderResponse struct {
	DocID            string    `json:"doc_id"`
	OrderID          string    `json:"order_id"`
	PaymentSessionID string    `json:"payment_session_id,omitempty"`
	CustomerEmail    string    `json:"customer_email,omitempty"`
	ChildName        string    `json:"child_name"`
	ChildAge         *int      `json:"child_age,omitempty"`
	ChildGender      string    `json:"child_gender,omitempty"`
	Achievements     string    `json:"achievements,omitempty"`
	Interests        string    `json:"interests,omitempty"`
	SpecialMessage   string    `json:"special_message,omitempty"`
	MessageType      string    `json:"message_type,omitempty"`
	Status           string    `json:"status"`
	Script           string    `json:"script,omitempty"`
	AudioURL         string    `json:"audio_url,omitempty"`
	VideoURL         string    `json:"video_url,omitempty"`
	JobKind          string    `json:"job_kind,omitempty"`
	JobIDs           []string  `json:"job_ids,omitempty"`
	StitchingStatus  string    `json:"stitching_status,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func orderResponse(o *orders.Order) OrderResponse {
	return OrderResponse{
		DocID:            o.DocID,
		OrderID:          o.ID,
		PaymentSessionID: o.PaymentSessionID,
		CustomerEmail:    o.CustomerEmail,
		ChildName:        o.ChildName,
		ChildAge:         o.ChildAge,
		ChildGender:      o.ChildGender,
		Achievements:     o.Achievements,
		Interests:        o.Interests,
		SpecialMessage:   o.SpecialMessage,
		MessageType:      o.MessageType,
		Status:           string(o.Status),
		Script:           o.Script,
		AudioURL:         o.AudioURL,
		VideoURL:         o.VideoURL,
		JobKind:          string(o.Job.Kind),
		JobIDs:           o.Job.IDs(),
		StitchingStatus:  string(o.StitchingStatus),
		ErrorMessage:     o.ErrorMessage,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// GetOrderEndpoint handles GET /api/orders/{id}.
type GetOrderEndpoint struct{}

func (e *GetOrderEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/orders/{id}", e.handler
}

func (e *GetOrderEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get order by ID
//	@Description	Get the full order record including generation state
//	@Tags			orders
//	@Produce		json
//	@Param			id	path		string	true	"Order document ID"
//	@Success		200	{object}	OrderResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/orders/{id} [get]
func (e *GetOrderEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	store := svcctx.OrderStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "order store not initialized")
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

	writeJSON(w, http.StatusOK, orderResponse(order))
}

func (e *GetOrderEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an order by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp OrderResponse
			if err := client.Get(cmd.Context(), "/api/orders/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
