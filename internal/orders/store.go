package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/santagram/santagram/internal/defra"
)

// Collection is the DefraDB collection name for orders.
const Collection = "Order"

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order not found")

// orderFields lists every persisted column, used for point reads.
var orderFields = []string{
	"_docID",
	"order_id",
	"payment_session_id",
	"customer_email",
	"child_name",
	"child_age",
	"child_gender",
	"achievements",
	"interests",
	"special_message",
	"message_type",
	"status",
	"script",
	"audio_url",
	"video_url",
	"job_kind",
	"job_ids",
	"stitching_status",
	"error_message",
	"created_at",
	"updated_at",
}

// Store persists orders in DefraDB. All writes are narrow: only the
// fields being changed appear in the update input.
type Store struct {
	client *defra.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates an order store backed by the given DefraDB client.
func NewStore(client *defra.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		logger: logger.With("component", "orders"),
		now:    time.Now,
	}
}

// Create persists a new order. A missing ID is assigned, the status
// defaults to pending, and timestamps are set. Returns the DefraDB docID.
func (s *Store) Create(ctx context.Context, o *Order) (string, error) {
	if o.ChildName == "" {
		return "", fmt.Errorf("order requires child_name")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.StitchingStatus == "" {
		o.StitchingStatus = StitchingNone
	}
	now := s.now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	input := map[string]any{
		"order_id":         o.ID,
		"child_name":       o.ChildName,
		"status":           string(o.Status),
		"job_kind":         string(JobNone),
		"stitching_status": string(o.StitchingStatus),
		"created_at":       int(now.Unix()),
		"updated_at":       int(now.Unix()),
	}
	if o.PaymentSessionID != "" {
		input["payment_session_id"] = o.PaymentSessionID
	}
	if o.CustomerEmail != "" {
		input["customer_email"] = o.CustomerEmail
	}
	if o.ChildAge != nil {
		input["child_age"] = *o.ChildAge
	}
	if o.ChildGender != "" {
		input["child_gender"] = o.ChildGender
	}
	if o.Achievements != "" {
		input["achievements"] = o.Achievements
	}
	if o.Interests != "" {
		input["interests"] = o.Interests
	}
	if o.SpecialMessage != "" {
		input["special_message"] = o.SpecialMessage
	}
	if o.MessageType != "" {
		input["message_type"] = o.MessageType
	}
	if o.Script != "" {
		input["script"] = o.Script
	}

	docID, err := s.client.Create(ctx, Collection, input)
	if err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}
	o.DocID = docID

	s.logger.Info("order created", "doc_id", docID, "order_id", o.ID)
	return docID, nil
}

// GetByDocID fetches an order by its DefraDB document ID.
func (s *Store) GetByDocID(ctx context.Context, docID string) (*Order, error) {
	if _, err := defra.SafeID(docID); err != nil {
		return nil, fmt.Errorf("invalid order id: %w", err)
	}
	resp, err := defra.SafeQueryByDocID(ctx, s.client, Collection, docID, orderFields...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return s.firstOrder(resp)
}

// GetBySessionID fetches an order by its payment session reference.
func (s *Store) GetBySessionID(ctx context.Context, sessionID string) (*Order, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id")
	}
	resp, err := defra.NewQuery(Collection).
		Filter("payment_session_id", sessionID).
		Fields(orderFields...).
		Limit(1).
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return s.firstOrder(resp)
}

// Update applies a narrow field update to an order. The updated_at
// column is always touched.
func (s *Store) Update(ctx context.Context, docID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	input := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		input[k] = v
	}
	input["updated_at"] = int(s.now().UTC().Unix())

	if err := s.client.Update(ctx, Collection, docID, input); err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// SetStatus records a status transition.
func (s *Store) SetStatus(ctx context.Context, docID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %q", status)
	}
	s.logger.Info("order status", "doc_id", docID, "status", status)
	return s.Update(ctx, docID, map[string]any{"status": string(status)})
}

// SetGenerating links the generation job(s) and marks the order
// generating in a single write, closing most of the window where a
// concurrent trigger could double-submit.
func (s *Store) SetGenerating(ctx context.Context, docID string, ref JobRef) error {
	if ref.IsZero() {
		return fmt.Errorf("cannot link an empty job ref")
	}
	s.logger.Info("order generating", "doc_id", docID, "kind", ref.Kind, "jobs", len(ref.IDs()))
	return s.Update(ctx, docID, map[string]any{
		"status":   string(StatusGenerating),
		"job_kind": string(ref.Kind),
		"job_ids":  ref.IDs(),
	})
}

// SetStitchingStatus records the chunk-assembly phase.
func (s *Store) SetStitchingStatus(ctx context.Context, docID string, st StitchingStatus) error {
	return s.Update(ctx, docID, map[string]any{"stitching_status": string(st)})
}

// SetFailed marks the order failed with a customer-safe message.
func (s *Store) SetFailed(ctx context.Context, docID, message string) error {
	s.logger.Warn("order failed", "doc_id", docID, "error", message)
	return s.Update(ctx, docID, map[string]any{
		"status":        string(StatusFailed),
		"error_message": message,
	})
}

// SetCompleted records the final video and marks the order completed.
// It reports whether this call was the one that set video_url for the
// first time, which gates the notification email on redelivered
// webhooks.
func (s *Store) SetCompleted(ctx context.Context, docID, videoURL string) (first bool, err error) {
	if videoURL == "" {
		return false, fmt.Errorf("completed order requires a video url")
	}

	current, err := s.GetByDocID(ctx, docID)
	if err != nil {
		return false, err
	}
	if current.VideoURL != "" {
		// Already completed by an earlier delivery.
		if current.Status != StatusCompleted {
			if err := s.SetStatus(ctx, docID, StatusCompleted); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	err = s.Update(ctx, docID, map[string]any{
		"video_url": videoURL,
		"status":    string(StatusCompleted),
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("order completed", "doc_id", docID)
	return true, nil
}

// firstOrder extracts the first order document from a query response.
func (s *Store) firstOrder(resp *defra.GQLResponse) (*Order, error) {
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("query error: %s", errMsg)
	}
	docs, ok := resp.Data[Collection].([]any)
	if !ok || len(docs) == 0 {
		return nil, ErrNotFound
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected document format: %+v", docs[0])
	}
	return orderFromDoc(doc)
}

// orderFromDoc maps a GraphQL document to an Order. JSON numbers
// arrive as float64.
func orderFromDoc(doc map[string]any) (*Order, error) {
	o := &Order{
		DocID:            docString(doc, "_docID"),
		ID:               docString(doc, "order_id"),
		PaymentSessionID: docString(doc, "payment_session_id"),
		CustomerEmail:    docString(doc, "customer_email"),
		ChildName:        docString(doc, "child_name"),
		ChildGender:      docString(doc, "child_gender"),
		Achievements:     docString(doc, "achievements"),
		Interests:        docString(doc, "interests"),
		SpecialMessage:   docString(doc, "special_message"),
		MessageType:      docString(doc, "message_type"),
		Status:           Status(docString(doc, "status")),
		Script:           docString(doc, "script"),
		AudioURL:         docString(doc, "audio_url"),
		VideoURL:         docString(doc, "video_url"),
		StitchingStatus:  StitchingStatus(docString(doc, "stitching_status")),
		ErrorMessage:     docString(doc, "error_message"),
	}
	if o.StitchingStatus == "" {
		o.StitchingStatus = StitchingNone
	}

	if age, ok := docInt(doc, "child_age"); ok {
		o.ChildAge = &age
	}
	if ts, ok := docInt(doc, "created_at"); ok {
		o.CreatedAt = time.Unix(int64(ts), 0).UTC()
	}
	if ts, ok := docInt(doc, "updated_at"); ok {
		o.UpdatedAt = time.Unix(int64(ts), 0).UTC()
	}

	ref, err := JobRefFromColumns(docString(doc, "job_kind"), docStrings(doc, "job_ids"))
	if err != nil {
		return nil, fmt.Errorf("order %s has inconsistent job columns: %w", o.DocID, err)
	}
	o.Job = ref

	return o, nil
}

func docString(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docInt(doc map[string]any, key string) (int, bool) {
	switch v := doc[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func docStrings(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
