package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how far a webhook timestamp may drift from the
// local clock before the signature is rejected.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature is returned when no v1 signature matches.
	ErrInvalidSignature = errors.New("webhook signature mismatch")

	// ErrSignatureExpired is returned when the signed timestamp falls
	// outside the tolerance window.
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
)

// timeNow is swapped in tests.
var timeNow = time.Now

// VerifySignature checks a payment webhook signature header of the form
// "t=<unix>,v1=<hex>[,v1=<hex>...]" against the raw payload. The signed
// string is "<t>.<payload>" and the MAC is HMAC-SHA256 under secret.
// Pass tolerance 0 for the default window.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	timestamp, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	drift := timeNow().Sub(time.Unix(timestamp, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return ErrSignatureExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// parseSignatureHeader extracts the timestamp and all v1 signatures.
func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var timestamp int64 = -1
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid signature timestamp: %w", err)
			}
			timestamp = ts
		case "v1":
			sigs = append(sigs, v)
		}
	}

	if timestamp < 0 {
		return 0, nil, fmt.Errorf("signature header missing timestamp")
	}
	if len(sigs) == 0 {
		return 0, nil, fmt.Errorf("signature header missing v1 signature")
	}
	return timestamp, sigs, nil
}
