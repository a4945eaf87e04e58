package providers

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative clamped", "-5", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.header); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	if got < 80*time.Second || got > 90*time.Second {
		t.Errorf("expected ~90s, got %s", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("expected 0 for past date, got %s", got)
	}
}

func TestIsRateLimitError(t *testing.T) {
	rle := &RateLimitError{Message: "limited", RetryAfter: 5 * time.Second}
	wrapped := fmt.Errorf("generate failed: %w", rle)

	got, ok := IsRateLimitError(wrapped)
	if !ok {
		t.Fatal("expected wrapped RateLimitError to be detected")
	}
	if got.RetryAfter != 5*time.Second {
		t.Errorf("expected 5s, got %s", got.RetryAfter)
	}

	if _, ok := IsRateLimitError(fmt.Errorf("plain error")); ok {
		t.Error("plain error should not match")
	}
}
