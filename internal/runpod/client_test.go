package runpod

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:     "rp-key",
		EndpointID: "ep1",
		BaseURL:    baseURL,
		R2: R2Credentials{
			AccountID:       "acct",
			AccessKeyID:     "ak",
			SecretAccessKey: "sk",
			Bucket:          "media",
			PublicURL:       "https://media.example.com",
		},
		PollInterval: time.Millisecond,
	}
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := testConfig(baseURL)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://media.example.com/audio/a.mp3", "audio/a.mp3"},
		{"https://acct.r2.cloudflarestorage.com/media/audio/a.mp3", "media/audio/a.mp3"},
		{"audio/a.mp3", "audio/a.mp3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractKey(tt.in); got != tt.want {
			t.Errorf("ExtractKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{EndpointID: "ep"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("expected error without endpoint ID")
	}
}

func TestSplitAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ep1/run"):
			var req runRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Input.Mode != ModeSplitAudio {
				t.Errorf("expected split_audio mode, got %q", req.Input.Mode)
			}
			if req.Input.AudioKey != "audio/a.mp3" {
				t.Errorf("expected extracted key, got %q", req.Input.AudioKey)
			}
			if req.Input.ChunkDuration != 25 {
				t.Errorf("expected chunk_duration 25, got %d", req.Input.ChunkDuration)
			}
			if req.Input.R2BucketName != "media" || req.Input.R2AccountID != "acct" {
				t.Error("R2 credentials missing from payload")
			}
			if req.Webhook != "" {
				t.Error("sync jobs must not set a webhook")
			}
			json.NewEncoder(w).Encode(runResponse{ID: "job-1"})
		case strings.HasSuffix(r.URL.Path, "/ep1/status/job-1"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "job-1",
				"status": StateCompleted,
				"output": map[string]any{
					"chunk_urls": []string{"https://media.example.com/c1.mp3", "https://media.example.com/c2.mp3"},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	chunks, err := c.SplitAudio(context.Background(), "https://media.example.com/audio/a.mp3", 25)
	if err != nil {
		t.Fatalf("SplitAudio failed: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "https://media.example.com/c1.mp3" {
		t.Errorf("unexpected chunks %v", chunks)
	}
}

func TestStitchPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/run"):
			var req runRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Input.Mode != ModeStitch {
				t.Errorf("expected stitch mode, got %q", req.Input.Mode)
			}
			if len(req.Input.VideoChunks) != 2 || req.Input.VideoChunks[0] != "videos/v1.mp4" {
				t.Errorf("expected extracted chunk keys, got %v", req.Input.VideoChunks)
			}
			if req.Input.OutputKey != "videos/final.mp4" {
				t.Errorf("unexpected output key %q", req.Input.OutputKey)
			}
			json.NewEncoder(w).Encode(runResponse{ID: "job-2"})
		default:
			st := map[string]any{"id": "job-2", "status": StateInProgress}
			if polls.Add(1) >= 3 {
				st["status"] = StateCompleted
				st["output"] = map[string]any{"video_url": "https://media.example.com/videos/final.mp4"}
			}
			json.NewEncoder(w).Encode(st)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	url, err := c.Stitch(context.Background(),
		[]string{"https://media.example.com/videos/v1.mp4", "https://media.example.com/videos/v2.mp4"},
		"https://media.example.com/audio/a.mp3",
		"videos/final.mp4",
	)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if url != "https://media.example.com/videos/final.mp4" {
		t.Errorf("unexpected URL %q", url)
	}
}

func TestStitchFallsBackToOutputKeyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/run") {
			json.NewEncoder(w).Encode(runResponse{ID: "job-3"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "job-3", "status": StateCompleted})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	url, err := c.Stitch(context.Background(), []string{"v.mp4"}, "a.mp3", "videos/out.mp4")
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if url != "https://media.example.com/videos/out.mp4" {
		t.Errorf("unexpected fallback URL %q", url)
	}
}

func TestStitchRejectsEmptyChunks(t *testing.T) {
	c := newTestClient(t, "http://unused", nil)
	if _, err := c.Stitch(context.Background(), nil, "a.mp3", "out.mp4"); err == nil {
		t.Fatal("expected error for empty chunk list")
	}
}

func TestSyncJobFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/run") {
			json.NewEncoder(w).Encode(runResponse{ID: "job-4"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "job-4", "status": StateFailed, "error": "ffmpeg exited 1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.SplitAudio(context.Background(), "a.mp3", 25)
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg exited 1") {
		t.Errorf("error should carry worker message: %v", err)
	}
}

func TestSyncJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/run") {
			json.NewEncoder(w).Encode(runResponse{ID: "job-5"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "job-5", "status": StateInProgress})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.SplitMaxAttempts = 3
	})
	_, err := c.SplitAudio(context.Background(), "a.mp3", 25)
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
}

func TestSubmitPipelineSetsWebhookAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Input.Mode != ModeGenerateAndStitch {
			t.Errorf("expected generate_and_stitch mode, got %q", req.Input.Mode)
		}
		if req.Input.ReplicateAPIToken != "rep-tok" {
			t.Error("replicate token missing from payload")
		}
		if req.Input.VideoURL != "https://media.example.com/hero.mp4" {
			t.Errorf("unexpected hero video %q", req.Input.VideoURL)
		}
		if req.Webhook != "https://api.example.com/api/webhooks/runpod" {
			t.Errorf("unexpected webhook %q", req.Webhook)
		}
		json.NewEncoder(w).Encode(runResponse{ID: "job-6"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.ReplicateToken = "rep-tok"
		cfg.HeroVideoURL = "https://media.example.com/hero.mp4"
		cfg.WebhookURL = "https://api.example.com/api/webhooks/runpod"
	})
	id, err := c.SubmitPipeline(context.Background(), "audio/a.mp3", "videos/out.mp4", 25, "")
	if err != nil {
		t.Fatalf("SubmitPipeline failed: %v", err)
	}
	if id != "job-6" {
		t.Errorf("unexpected job ID %q", id)
	}
}

func TestSubmitPipelineWebhookOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Webhook != "https://api.example.com/api/webhooks/runpod?order_id=bae-1" {
			t.Errorf("unexpected webhook %q", req.Webhook)
		}
		json.NewEncoder(w).Encode(runResponse{ID: "job-7"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.ReplicateToken = "rep-tok"
		cfg.WebhookURL = "https://api.example.com/api/webhooks/runpod"
	})
	_, err := c.SubmitPipeline(context.Background(), "audio/a.mp3", "videos/out.mp4", 25,
		"https://api.example.com/api/webhooks/runpod?order_id=bae-1")
	if err != nil {
		t.Fatalf("SubmitPipeline failed: %v", err)
	}
}

func TestSubmitPipelineRequiresReplicateToken(t *testing.T) {
	c := newTestClient(t, "http://unused", nil)
	if _, err := c.SubmitPipeline(context.Background(), "a.mp3", "out.mp4", 25, ""); err == nil {
		t.Fatal("expected error without replicate token")
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name       string
		response   map[string]any
		wantStatus string
		wantURL    string
		wantErrMsg string
		wantErr    bool
	}{
		{
			name: "completed",
			response: map[string]any{
				"status": StateCompleted,
				"output": map[string]any{"video_url": "https://media.example.com/v.mp4"},
			},
			wantStatus: StateCompleted,
			wantURL:    "https://media.example.com/v.mp4",
		},
		{
			name:       "completed without url is an error",
			response:   map[string]any{"status": StateCompleted},
			wantErr:    true,
		},
		{
			name:       "failed",
			response:   map[string]any{"status": StateFailed, "error": "boom"},
			wantStatus: StateFailed,
			wantErrMsg: "boom",
		},
		{
			name:       "canceled maps to failed",
			response:   map[string]any{"status": StateCanceled},
			wantStatus: StateFailed,
			wantErrMsg: "unknown error",
		},
		{
			name:       "queued maps to in progress",
			response:   map[string]any{"status": StateInQueue},
			wantStatus: StateInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			res, err := c.JobStatus(context.Background(), "j")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("JobStatus failed: %v", err)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", res.Status, tt.wantStatus)
			}
			if res.VideoURL != tt.wantURL {
				t.Errorf("video_url = %q, want %q", res.VideoURL, tt.wantURL)
			}
			if res.Error != tt.wantErrMsg {
				t.Errorf("error = %q, want %q", res.Error, tt.wantErrMsg)
			}
		})
	}
}
