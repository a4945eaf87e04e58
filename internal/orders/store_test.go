package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/santagram/santagram/internal/defra"
)

// defraStub is an httptest-backed DefraDB that records GraphQL
// requests and replays canned responses in order.
type defraStub struct {
	server    *httptest.Server
	requests  []defra.GQLRequest
	responses []string
}

func newDefraStub(t *testing.T, responses ...string) *defraStub {
	t.Helper()
	stub := &defraStub{responses: responses}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req defra.GQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		stub.requests = append(stub.requests, req)

		resp := `{"data": {}}`
		if len(stub.requests) <= len(stub.responses) {
			resp = stub.responses[len(stub.requests)-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *defraStub) store() *Store {
	st := NewStore(defra.NewClient(s.server.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return st
}

func orderDoc(fields string) string {
	return fmt.Sprintf(`{"data": {"Order": [%s]}}`, fields)
}

func TestStore_Create(t *testing.T) {
	stub := newDefraStub(t, `{"data": {"create_Order": [{"_docID": "bae-order-1"}]}}`)
	store := stub.store()

	age := 7
	o := &Order{
		PaymentSessionID: "cs_test_123",
		CustomerEmail:    "parent@example.com",
		ChildName:        "Emma",
		ChildAge:         &age,
		MessageType:      "christmas-morning",
	}

	docID, err := store.Create(context.Background(), o)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if docID != "bae-order-1" {
		t.Errorf("docID = %q", docID)
	}
	if o.DocID != "bae-order-1" {
		t.Errorf("order DocID not set: %q", o.DocID)
	}
	if o.ID == "" {
		t.Error("order ID not assigned")
	}
	if o.Status != StatusPending {
		t.Errorf("status = %q, want pending", o.Status)
	}

	query := stub.requests[0].Query
	for _, want := range []string{"create_Order", `child_name: "Emma"`, `status: "pending"`, `job_kind: "none"`, "child_age: 7"} {
		if !strings.Contains(query, want) {
			t.Errorf("create mutation missing %q: %s", want, query)
		}
	}
}

func TestStore_Create_RequiresChildName(t *testing.T) {
	stub := newDefraStub(t)
	if _, err := stub.store().Create(context.Background(), &Order{}); err == nil {
		t.Error("expected error for missing child name")
	}
}

func TestStore_GetByDocID(t *testing.T) {
	stub := newDefraStub(t, orderDoc(`{
		"_docID": "bae-order-1",
		"order_id": "ord-1",
		"payment_session_id": "cs_test_123",
		"child_name": "Emma",
		"child_age": 7,
		"status": "generating",
		"job_kind": "chunks",
		"job_ids": ["p0", "p1"],
		"stitching_status": "pending",
		"created_at": 1735689600,
		"updated_at": 1735689700
	}`))

	o, err := stub.store().GetByDocID(context.Background(), "bae-order-1")
	if err != nil {
		t.Fatalf("GetByDocID() error = %v", err)
	}
	if o.ID != "ord-1" || o.ChildName != "Emma" {
		t.Errorf("unexpected order: %+v", o)
	}
	if o.ChildAge == nil || *o.ChildAge != 7 {
		t.Errorf("child age = %v", o.ChildAge)
	}
	if o.Status != StatusGenerating {
		t.Errorf("status = %q", o.Status)
	}
	if o.Job.Kind != JobChunks || len(o.Job.ChunkIDs) != 2 {
		t.Errorf("job = %+v", o.Job)
	}
	if o.StitchingStatus != StitchingPending {
		t.Errorf("stitching = %q", o.StitchingStatus)
	}
	if o.CreatedAt.IsZero() || o.UpdatedAt.Before(o.CreatedAt) {
		t.Errorf("timestamps: created=%v updated=%v", o.CreatedAt, o.UpdatedAt)
	}
}

func TestStore_GetByDocID_NotFound(t *testing.T) {
	stub := newDefraStub(t, `{"data": {"Order": []}}`)

	_, err := stub.store().GetByDocID(context.Background(), "bae-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetByDocID_RejectsUnsafeID(t *testing.T) {
	stub := newDefraStub(t)
	_, err := stub.store().GetByDocID(context.Background(), `x") { _docID }`)
	if err == nil {
		t.Error("expected error for unsafe id")
	}
	if len(stub.requests) != 0 {
		t.Error("unsafe id should not reach the database")
	}
}

func TestStore_GetBySessionID(t *testing.T) {
	stub := newDefraStub(t, orderDoc(`{
		"_docID": "bae-order-1",
		"payment_session_id": "cs_test_123",
		"child_name": "Emma",
		"status": "paid",
		"job_kind": "none"
	}`))

	o, err := stub.store().GetBySessionID(context.Background(), "cs_test_123")
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if o.PaymentSessionID != "cs_test_123" {
		t.Errorf("session = %q", o.PaymentSessionID)
	}
	if !o.Job.IsZero() {
		t.Errorf("expected zero job ref, got %+v", o.Job)
	}

	// The session id travels as a GraphQL variable, never interpolated.
	req := stub.requests[0]
	if strings.Contains(req.Query, "cs_test_123") {
		t.Errorf("session id interpolated into query: %s", req.Query)
	}
	found := false
	for _, v := range req.Variables {
		if v == "cs_test_123" {
			found = true
		}
	}
	if !found {
		t.Errorf("session id missing from variables: %+v", req.Variables)
	}
}

func TestStore_SetGenerating_ChunkJobs(t *testing.T) {
	stub := newDefraStub(t, `{"data": {"update_Order": [{"_docID": "bae-order-1"}]}}`)

	err := stub.store().SetGenerating(context.Background(), "bae-order-1", ChunkJobs([]string{"p0", "p1"}))
	if err != nil {
		t.Fatalf("SetGenerating() error = %v", err)
	}

	query := stub.requests[0].Query
	for _, want := range []string{"update_Order", `job_kind: "chunks"`, `job_ids: ["p0", "p1"]`, "updated_at:"} {
		if !strings.Contains(query, want) {
			t.Errorf("update mutation missing %q: %s", want, query)
		}
	}
	// Narrow update: untouched columns stay out of the input.
	if strings.Contains(query, "child_name") || strings.Contains(query, "video_url") {
		t.Errorf("update mutation touches unrelated fields: %s", query)
	}
}

func TestStore_SetGenerating_SingleWrite(t *testing.T) {
	stub := newDefraStub(t, `{"data": {"update_Order": [{"_docID": "bae-order-1"}]}}`)

	err := stub.store().SetGenerating(context.Background(), "bae-order-1", SingleJob("pred-1"))
	if err != nil {
		t.Fatalf("SetGenerating() error = %v", err)
	}

	// Status and job link land in one mutation.
	if len(stub.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(stub.requests))
	}
	query := stub.requests[0].Query
	for _, want := range []string{`status: "generating"`, `job_kind: "single"`, `job_ids: ["pred-1"]`} {
		if !strings.Contains(query, want) {
			t.Errorf("mutation missing %q: %s", want, query)
		}
	}
}

func TestStore_SetGenerating_RejectsEmpty(t *testing.T) {
	stub := newDefraStub(t)
	if err := stub.store().SetGenerating(context.Background(), "bae-order-1", JobRef{}); err == nil {
		t.Error("expected error for empty job ref")
	}
}

func TestStore_SetStatus_RejectsInvalid(t *testing.T) {
	stub := newDefraStub(t)
	if err := stub.store().SetStatus(context.Background(), "bae-order-1", Status("shipped")); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestStore_SetFailed(t *testing.T) {
	stub := newDefraStub(t, `{"data": {"update_Order": [{"_docID": "bae-order-1"}]}}`)

	err := stub.store().SetFailed(context.Background(), "bae-order-1", "video generation failed")
	if err != nil {
		t.Fatalf("SetFailed() error = %v", err)
	}
	query := stub.requests[0].Query
	if !strings.Contains(query, `status: "failed"`) || !strings.Contains(query, `error_message: "video generation failed"`) {
		t.Errorf("unexpected mutation: %s", query)
	}
}

func TestStore_SetCompleted_FirstDelivery(t *testing.T) {
	stub := newDefraStub(t,
		orderDoc(`{"_docID": "bae-order-1", "child_name": "Emma", "status": "generating", "job_kind": "none"}`),
		`{"data": {"update_Order": [{"_docID": "bae-order-1"}]}}`,
	)

	first, err := stub.store().SetCompleted(context.Background(), "bae-order-1", "https://cdn.example.com/video.mp4")
	if err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}
	if !first {
		t.Error("first delivery should report true")
	}

	query := stub.requests[1].Query
	if !strings.Contains(query, `video_url: "https://cdn.example.com/video.mp4"`) || !strings.Contains(query, `status: "completed"`) {
		t.Errorf("unexpected mutation: %s", query)
	}
}

func TestStore_SetCompleted_Redelivery(t *testing.T) {
	stub := newDefraStub(t,
		orderDoc(`{"_docID": "bae-order-1", "child_name": "Emma", "status": "completed", "video_url": "https://cdn.example.com/video.mp4", "job_kind": "none"}`),
	)

	first, err := stub.store().SetCompleted(context.Background(), "bae-order-1", "https://cdn.example.com/other.mp4")
	if err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}
	if first {
		t.Error("redelivery should report false")
	}
	// Only the read hits the database, the existing video_url is kept.
	if len(stub.requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(stub.requests))
	}
}

func TestStore_SetCompleted_RepairsStatus(t *testing.T) {
	stub := newDefraStub(t,
		orderDoc(`{"_docID": "bae-order-1", "child_name": "Emma", "status": "generating", "video_url": "https://cdn.example.com/video.mp4", "job_kind": "none"}`),
		`{"data": {"update_Order": [{"_docID": "bae-order-1"}]}}`,
	)

	first, err := stub.store().SetCompleted(context.Background(), "bae-order-1", "https://cdn.example.com/video.mp4")
	if err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}
	if first {
		t.Error("video_url already set, should not report first")
	}
	if !strings.Contains(stub.requests[1].Query, `status: "completed"`) {
		t.Errorf("expected status repair mutation: %s", stub.requests[1].Query)
	}
}

func TestStore_SetCompleted_RequiresURL(t *testing.T) {
	stub := newDefraStub(t)
	if _, err := stub.store().SetCompleted(context.Background(), "bae-order-1", ""); err == nil {
		t.Error("expected error for empty video url")
	}
}
