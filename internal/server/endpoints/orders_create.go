package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/svcctx"
)

// createOrderSchema validates incoming order payloads before they touch the store.
const createOrderSchema = `{
  "type": "object",
  "required": ["child_name"],
  "properties": {
    "child_name":         {"type": "string", "minLength": 1, "maxLength": 100},
    "child_age":          {"type": "integer", "minimum": 1, "maximum": 17},
    "child_gender":       {"type": "string", "enum": ["boy", "girl", "other", ""]},
    "achievements":       {"type": "string", "maxLength": 500},
    "interests":          {"type": "string", "maxLength": 500},
    "special_message":    {"type": "string", "maxLength": 500},
    "message_type":       {"type": "string", "maxLength": 50},
    "customer_email":     {"type": "string", "maxLength": 254},
    "payment_session_id": {"type": "string", "maxLength": 255}
  },
  "additionalProperties": false
}`

var compiledOrderSchema = jsonschema.MustCompileString("order.json", createOrderSchema)

// CreateOrderRequest is the request body for creating an order.
type CreateOrderRequest struct {
	ChildName        string `json:"child_name"`
	ChildAge         *int   `json:"child_age,omitempty"`
	ChildGender      string `json:"child_gender,omitempty"`
	Achievements     string `json:"achievements,omitempty"`
	Interests        string `json:"interests,omitempty"`
	SpecialMessage   string `json:"special_message,omitempty"`
	MessageType      string `json:"message_type,omitempty"`
	CustomerEmail    string `json:"customer_email,omitempty"`
	PaymentSessionID string `json:"payment_session_id,omitempty"`
}

// CreateOrderResponse is the response for creating an order.
type CreateOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrderEndpoint handles POST /api/orders.
type CreateOrderEndpoint struct{}

func (e *CreateOrderEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/orders", e.handler
}

func (e *CreateOrderEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create an order
//	@Description	Create a new pending order for a personalized video
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateOrderRequest	true	"Order creation request"
//	@Success		201		{object}	CreateOrderResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/orders [post]
func (e *CreateOrderEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := compiledOrderSchema.Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	var req CreateOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := svcctx.OrderStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "order store not initialized")
		return
	}

	order := &orders.Order{
		PaymentSessionID: req.PaymentSessionID,
		CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
		ChildName:        strings.TrimSpace(req.ChildName),
		ChildAge:         req.ChildAge,
		ChildGender:      req.ChildGender,
		Achievements:     req.Achievements,
		Interests:        req.Interests,
		SpecialMessage:   req.SpecialMessage,
		MessageType:      req.MessageType,
		Status:           orders.StatusPending,
	}

	docID, err := store.Create(r.Context(), order)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{ID: docID, Status: string(orders.StatusPending)})
}

// validationMessage flattens jsonschema's nested error into a single line.
func validationMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if loc == "" {
		return leaf.Message
	}
	return fmt.Sprintf("%s: %s", loc, leaf.Message)
}

func (e *CreateOrderEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		childName string
		childAge  int
		email     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if childName == "" {
				return fmt.Errorf("--child-name is required")
			}
			req := CreateOrderRequest{ChildName: childName, CustomerEmail: email}
			if cmd.Flags().Changed("child-age") {
				req.ChildAge = &childAge
			}
			client := api.NewClient(getServerURL())
			var resp CreateOrderResponse
			if err := client.Post(cmd.Context(), "/api/orders", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&childName, "child-name", "", "Child's name (required)")
	cmd.Flags().IntVar(&childAge, "child-age", 0, "Child's age")
	cmd.Flags().StringVar(&email, "email", "", "Customer email for delivery")
	return cmd
}
