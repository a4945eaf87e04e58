package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signPayload(t *testing.T, payload []byte, secret string, ts int64) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Unix(1735689600, 0)

	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	t.Run("valid", func(t *testing.T) {
		header := signPayload(t, payload, secret, now.Unix())
		if err := VerifySignature(payload, header, secret, 0); err != nil {
			t.Errorf("VerifySignature() error = %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signPayload(t, payload, "whsec_other", now.Unix())
		err := VerifySignature(payload, header, secret, 0)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("error = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signPayload(t, payload, secret, now.Unix())
		err := VerifySignature([]byte(`{"type":"evil"}`), header, secret, 0)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("error = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := signPayload(t, payload, secret, now.Add(-10*time.Minute).Unix())
		err := VerifySignature(payload, header, secret, 0)
		if !errors.Is(err, ErrSignatureExpired) {
			t.Errorf("error = %v, want ErrSignatureExpired", err)
		}
	})

	t.Run("second v1 matches", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		fmt.Fprintf(mac, "%d.", now.Unix())
		mac.Write(payload)
		header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), hex.EncodeToString(mac.Sum(nil)))
		if err := VerifySignature(payload, header, secret, 0); err != nil {
			t.Errorf("VerifySignature() error = %v", err)
		}
	})

	t.Run("malformed headers", func(t *testing.T) {
		for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
			if err := VerifySignature(payload, header, secret, 0); err == nil {
				t.Errorf("expected error for header %q", header)
			}
		}
	})

	t.Run("missing secret", func(t *testing.T) {
		header := signPayload(t, payload, secret, now.Unix())
		if err := VerifySignature(payload, header, "", 0); err == nil {
			t.Error("expected error for empty secret")
		}
	})
}

func TestParseCheckoutEvent(t *testing.T) {
	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"payment_status": "paid",
			"customer_email": "fallback@example.com",
			"customer_details": {"email": "parent@example.com"},
			"metadata": {"childName": "Emma", "messageType": "bedtime"}
		}}
	}`)

	evt, err := ParseCheckoutEvent(payload)
	if err != nil {
		t.Fatalf("ParseCheckoutEvent() error = %v", err)
	}
	if !evt.Completed() {
		t.Error("expected completed event")
	}
	if evt.SessionID != "cs_test_123" {
		t.Errorf("session = %q", evt.SessionID)
	}
	// customer_details wins over the session-level email.
	if evt.CustomerEmail != "parent@example.com" {
		t.Errorf("email = %q", evt.CustomerEmail)
	}
	if evt.Metadata["childName"] != "Emma" {
		t.Errorf("metadata = %+v", evt.Metadata)
	}
}

func TestParseCheckoutEvent_OtherType(t *testing.T) {
	evt, err := ParseCheckoutEvent([]byte(`{"type": "invoice.paid", "data": {"object": {}}}`))
	if err != nil {
		t.Fatalf("ParseCheckoutEvent() error = %v", err)
	}
	if evt.Completed() {
		t.Error("invoice.paid should not be a completed checkout")
	}
}

func TestParseCheckoutEvent_Invalid(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"type": "checkout.session.completed", "data": {"object": {}}}`),
	}
	for _, payload := range cases {
		if _, err := ParseCheckoutEvent(payload); err == nil {
			t.Errorf("expected error for payload %s", payload)
		}
	}
}

func TestClient_GetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions/cs_test_123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cs_test_123",
			"payment_status": "paid",
			"customer_details": {"email": "parent@example.com"},
			"metadata": {"childName": "Emma"}
		}`)
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk_test_key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	session, err := client.GetSession(context.Background(), "cs_test_123")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !session.Paid() {
		t.Error("expected paid session")
	}
	if session.CustomerEmail != "parent@example.com" {
		t.Errorf("email = %q", session.CustomerEmail)
	}
	if session.Metadata["childName"] != "Emma" {
		t.Errorf("metadata = %+v", session.Metadata)
	}
}

func TestClient_GetSession_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "sk_test_key", BaseURL: server.URL})
	if _, err := client.GetSession(context.Background(), "cs_missing"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
}
