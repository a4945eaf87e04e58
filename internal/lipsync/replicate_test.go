package lipsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(calls *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	var mu sync.Mutex
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		if calls != nil {
			*calls = append(*calls, d)
		}
		return nil
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"starting", StatusStarting},
		{"processing", StatusProcessing},
		{"succeeded", StatusSucceeded},
		{"failed", StatusFailed},
		{"canceled", StatusCanceled},
		{"queued", StatusFailed},
		{"", StatusFailed},
	}
	for _, tt := range tests {
		if got := normalizeStatus(tt.raw); got != tt.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCoerceOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"https://example.com/v.mp4"`, "https://example.com/v.mp4"},
		{"array takes first", `["https://a.mp4","https://b.mp4"]`, "https://a.mp4"},
		{"empty array", `[]`, ""},
		{"null", `null`, ""},
		{"number", `42`, "42"},
		{"absent", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceOutput(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("coerceOutput(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSubmitSendsHeroVideoAndAudioFile(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer media.Close()
	audioURL := media.URL + "/a.mp3"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/kwaivgi/kling-lip-sync/predictions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req createPredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if req.Input.VideoURL != "https://media.example.com/hero.mp4" {
			t.Errorf("unexpected video_url %q", req.Input.VideoURL)
		}
		if req.Input.AudioFile != audioURL {
			t.Errorf("unexpected audio_file %q", req.Input.AudioFile)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(predictionResponse{ID: "pred-1", Status: "starting"})
	}))
	defer srv.Close()

	c := New(Config{APIToken: "tok", BaseURL: srv.URL, HeroVideoURL: "https://media.example.com/hero.mp4"})

	id, err := c.Submit(context.Background(), audioURL)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "pred-1" {
		t.Errorf("expected pred-1, got %q", id)
	}
}

func TestSubmitRetriesOnceOn429(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(predictionResponse{ID: "pred-2", Status: "starting"})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := New(Config{APIToken: "tok", BaseURL: srv.URL})
	c.sleep = noSleep(&sleeps)

	id, err := c.Submit(context.Background(), srv.URL+"/a.mp3")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "pred-2" {
		t.Errorf("expected pred-2, got %q", id)
	}
	if len(sleeps) != 1 || sleeps[0] != 3*time.Second {
		t.Errorf("expected one 3s sleep, got %v", sleeps)
	}
}

func TestSubmitBatchPreservesOrderAndSpacesBatches(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createPredictionRequest
		json.NewDecoder(r.Body).Decode(&req)
		n.Add(1)
		// Derive the ID from the audio URL so order can be checked.
		json.NewEncoder(w).Encode(predictionResponse{ID: "pred-" + req.Input.AudioFile, Status: "starting"})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := New(Config{APIToken: "tok", BaseURL: srv.URL, BatchSize: 2})
	c.sleep = noSleep(&sleeps)

	urls := []string{"a", "b", "c", "d", "e"}
	ids, err := c.SubmitBatch(context.Background(), urls)
	if err != nil {
		t.Fatalf("SubmitBatch failed: %v", err)
	}
	for i, u := range urls {
		if ids[i] != "pred-"+u {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], "pred-"+u)
		}
	}
	// 3 batches of size 2 -> 2 inter-batch sleeps.
	if len(sleeps) != 2 {
		t.Errorf("expected 2 inter-batch sleeps, got %d", len(sleeps))
	}
}

func TestStatusBatchPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		p := predictionResponse{ID: id, Status: "processing"}
		if id == "p1" || id == "p3" {
			p.Status = "succeeded"
			p.Output = json.RawMessage(fmt.Sprintf("%q", "https://out/"+id+".mp4"))
		}
		json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := New(Config{APIToken: "tok", BaseURL: srv.URL})

	preds, err := c.StatusBatch(context.Background(), []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatalf("StatusBatch failed: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(preds))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if preds[i].ID != want {
			t.Errorf("preds[%d].ID = %q, want %q", i, preds[i].ID, want)
		}
	}
	if preds[0].Status != StatusSucceeded || preds[0].Output != "https://out/p1.mp4" {
		t.Errorf("unexpected p1 result %+v", preds[0])
	}
	if preds[1].Status != StatusProcessing {
		t.Errorf("p2 status = %q, want processing", preds[1].Status)
	}
}

func TestStatusBatchCarriesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictionResponse{
			ID:     "p1",
			Status: "failed",
			Error:  "NSFW content detected",
		})
	}))
	defer srv.Close()

	c := New(Config{APIToken: "tok", BaseURL: srv.URL})

	preds, err := c.StatusBatch(context.Background(), []string{"p1"})
	if err != nil {
		t.Fatalf("StatusBatch failed: %v", err)
	}
	if preds[0].Status != StatusFailed || !strings.Contains(preds[0].Error, "NSFW content detected") {
		t.Fatalf("expected failed prediction with upstream error, got %+v", preds[0])
	}
}
