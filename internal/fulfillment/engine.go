// Package fulfillment drives orders from paid to delivered. All three
// trigger paths (payment webhook, client status poll, lazy read
// trigger) funnel into the same Advance transition function so the
// idempotency guards live in exactly one place.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santagram/santagram/internal/audio"
	"github.com/santagram/santagram/internal/lipsync"
	"github.com/santagram/santagram/internal/orders"
	"github.com/santagram/santagram/internal/runpod"
	"github.com/santagram/santagram/internal/script"
)

// Stage names for error reporting.
const (
	StageSynthesis  = "synthesis"
	StageSplit      = "split"
	StageSubmit     = "submit"
	StageGeneration = "generation"
	StageStitch     = "stitch"
	StageStore      = "store"
)

// StageError tags a pipeline failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// failureMessage is the customer-safe error recorded on the order;
// stage detail stays in the logs.
func failureMessage(stage string) string {
	return fmt.Sprintf("video %s failed", stage)
}

// OrderStore is the slice of the order store the engine needs.
type OrderStore interface {
	GetByDocID(ctx context.Context, docID string) (*orders.Order, error)
	Update(ctx context.Context, docID string, fields map[string]any) error
	SetGenerating(ctx context.Context, docID string, ref orders.JobRef) error
	SetStitchingStatus(ctx context.Context, docID string, st orders.StitchingStatus) error
	SetFailed(ctx context.Context, docID, message string) error
	SetCompleted(ctx context.Context, docID, videoURL string) (bool, error)
}

// Speech produces a verified public audio URL for a script.
type Speech interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Lipsync is the prediction client surface the engine uses.
type Lipsync interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	SubmitBatch(ctx context.Context, audioURLs []string) ([]string, error)
	Status(ctx context.Context, predictionID string) (*lipsync.Prediction, error)
	StatusBatch(ctx context.Context, predictionIDs []string) ([]*lipsync.Prediction, error)
}

// Runner is the serverless execution surface the engine uses.
type Runner interface {
	SplitAudio(ctx context.Context, audioURL string, chunkSeconds int) ([]string, error)
	Stitch(ctx context.Context, videoChunkURLs []string, audioURL, outputKey string) (string, error)
	SubmitPipeline(ctx context.Context, audioURL, outputKey string, chunkSeconds int, webhookURL string) (string, error)
	JobStatus(ctx context.Context, jobID string) (*runpod.JobResult, error)
}

// Storage is the object-store surface the engine uses for final
// video persistence.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// Mailer delivers the video-ready notification.
type Mailer interface {
	SendVideoReady(ctx context.Context, to, childName, videoURL string) (string, error)
}

// Config holds engine tuning.
type Config struct {
	// MaxChunkSeconds is both the single-vs-chunked threshold and the
	// split chunk length. The same value must be used on every trigger
	// path, so it lives here and nowhere else.
	MaxChunkSeconds int

	// UsePipeline routes long audio to the serverless full pipeline
	// instead of the client-driven split/submit/stitch path.
	UsePipeline bool

	// BytesPerSecond for the duration heuristic; 0 means 128 kbps.
	BytesPerSecond int

	// WebhookURL is the externally reachable runpod callback endpoint.
	// The order id is appended per submission.
	WebhookURL string

	// PollInterval and PollMaxAttempts bound the chunk wait loop.
	PollInterval    time.Duration
	PollMaxAttempts int

	HTTPClient *http.Client
}

// DefaultMaxChunkSeconds mirrors the lipsync provider's per-job
// duration ceiling.
const DefaultMaxChunkSeconds = 25

// Engine advances orders through the fulfillment state machine.
type Engine struct {
	store   OrderStore
	speech  Speech
	lipsync Lipsync
	runner  Runner
	storage Storage
	mailer  Mailer
	config  Config
	client  *http.Client
	logger  *slog.Logger
}

// New creates a fulfillment engine. The mailer may be nil when email
// is not configured; completion then skips notification.
func New(store OrderStore, speech Speech, ls Lipsync, runner Runner, storage Storage, mailer Mailer, config Config, logger *slog.Logger) *Engine {
	if config.MaxChunkSeconds <= 0 {
		config.MaxChunkSeconds = DefaultMaxChunkSeconds
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.PollMaxAttempts <= 0 {
		config.PollMaxAttempts = 120
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		speech:  speech,
		lipsync: ls,
		runner:  runner,
		storage: storage,
		mailer:  mailer,
		config:  config,
		client:  client,
		logger:  logger.With("component", "fulfillment"),
	}
}

// Advance reads the order fresh and applies exactly one state-machine
// rule. It is safe to call repeatedly and from concurrent triggers:
// terminal orders are returned untouched, linked jobs are never
// re-submitted, and email is gated on the first video_url write.
// The returned order reflects the post-transition state.
func (e *Engine) Advance(ctx context.Context, docID string) (*orders.Order, error) {
	o, err := e.store.GetByDocID(ctx, docID)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status.Terminal():
		return o, nil
	case o.Status == orders.StatusPending:
		// Payment not confirmed; nothing to advance.
		return o, nil
	case o.Job.IsZero():
		// Paid with no job linked: start generation exactly once.
		return e.startGeneration(ctx, o)
	default:
		// Generating with a linked job: observe, never re-submit.
		return e.checkGeneration(ctx, o)
	}
}

// startGeneration runs script → speech → strategy selection → job
// submission, persisting the job handle and the generating status in
// one write.
func (e *Engine) startGeneration(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	text := o.Script
	if text == "" {
		text = script.Generate(o.Personalization())
	}

	audioURL, err := e.speech.Synthesize(ctx, text)
	if err != nil {
		return e.fail(ctx, o, &StageError{Stage: StageSynthesis, Err: err})
	}

	// Script and audio are durable before any job is linked, so a
	// crash here re-runs synthesis but never orphans a job.
	if err := e.store.Update(ctx, o.DocID, map[string]any{
		"script":    text,
		"audio_url": audioURL,
	}); err != nil {
		return nil, err
	}
	o.Script = text
	o.AudioURL = audioURL

	duration, err := audio.ProbeDuration(ctx, e.client, audioURL, e.config.BytesPerSecond)
	if err != nil {
		return e.fail(ctx, o, &StageError{Stage: StageSynthesis, Err: err})
	}

	var ref orders.JobRef
	stitching := orders.StitchingNone

	switch {
	case duration <= e.config.MaxChunkSeconds:
		id, err := e.lipsync.Submit(ctx, audioURL)
		if err != nil {
			return e.fail(ctx, o, &StageError{Stage: StageSubmit, Err: err})
		}
		ref = orders.SingleJob(id)

	case e.config.UsePipeline:
		id, err := e.runner.SubmitPipeline(ctx, audioURL, e.outputKey(o), e.config.MaxChunkSeconds, e.webhookFor(o))
		if err != nil {
			return e.fail(ctx, o, &StageError{Stage: StageSubmit, Err: err})
		}
		ref = orders.PipelineJob(id)
		stitching = orders.StitchingPending

	default:
		chunkURLs, err := e.runner.SplitAudio(ctx, audioURL, e.config.MaxChunkSeconds)
		if err != nil {
			return e.fail(ctx, o, &StageError{Stage: StageSplit, Err: err})
		}
		ids, err := e.lipsync.SubmitBatch(ctx, chunkURLs)
		if err != nil {
			return e.fail(ctx, o, &StageError{Stage: StageSubmit, Err: err})
		}
		ref = orders.ChunkJobs(ids)
		stitching = orders.StitchingPending
	}

	if err := e.store.SetGenerating(ctx, o.DocID, ref); err != nil {
		return nil, err
	}
	if stitching != orders.StitchingNone {
		if err := e.store.SetStitchingStatus(ctx, o.DocID, stitching); err != nil {
			return nil, err
		}
		o.StitchingStatus = stitching
	}

	o.Status = orders.StatusGenerating
	o.Job = ref
	e.logger.Info("generation started",
		"doc_id", o.DocID,
		"kind", ref.Kind,
		"duration_s", duration,
		"jobs", len(ref.IDs()),
	)
	return o, nil
}

// checkGeneration observes the linked job(s) and applies completion
// or failure. It never submits new generation jobs.
func (e *Engine) checkGeneration(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	switch o.Job.Kind {
	case orders.JobSingle:
		return e.checkSingle(ctx, o)
	case orders.JobChunks:
		return e.checkChunks(ctx, o)
	case orders.JobPipeline:
		return e.checkPipeline(ctx, o)
	}
	return nil, fmt.Errorf("order %s in %s with unexpected job kind %q", o.DocID, o.Status, o.Job.Kind)
}

func (e *Engine) checkSingle(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	p, err := e.lipsync.Status(ctx, o.Job.ID)
	if err != nil {
		// Transient status-check failure leaves the order untouched.
		return o, nil
	}
	switch p.Status {
	case lipsync.StatusSucceeded:
		return e.complete(ctx, o, p.Output)
	case lipsync.StatusFailed, lipsync.StatusCanceled:
		return e.fail(ctx, o, &StageError{Stage: StageGeneration, Err: errors.New(p.Error)})
	}
	return o, nil
}

func (e *Engine) checkChunks(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	preds, err := e.lipsync.StatusBatch(ctx, o.Job.ChunkIDs)
	if err != nil {
		return o, nil
	}

	// Fail fast: one dead chunk dooms the order, regardless of how
	// many siblings are still running.
	for _, p := range preds {
		if p.Status == lipsync.StatusFailed || p.Status == lipsync.StatusCanceled {
			if serr := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingFailed); serr != nil {
				return nil, serr
			}
			return e.fail(ctx, o, &StageError{Stage: StageGeneration, Err: fmt.Errorf("chunk %s: %s", p.ID, p.Error)})
		}
	}

	outputs := make([]string, 0, len(preds))
	for _, p := range preds {
		if p.Status != lipsync.StatusSucceeded {
			// Still moving; check again on the next trigger.
			return o, nil
		}
		outputs = append(outputs, p.Output)
	}

	return e.stitch(ctx, o, outputs)
}

// stitch assembles finished chunk videos into the final cut.
func (e *Engine) stitch(ctx context.Context, o *orders.Order, chunkVideoURLs []string) (*orders.Order, error) {
	if err := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingProcessing); err != nil {
		return nil, err
	}
	o.StitchingStatus = orders.StitchingProcessing

	videoURL, err := e.runner.Stitch(ctx, chunkVideoURLs, o.AudioURL, e.outputKey(o))
	if err != nil {
		if serr := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingFailed); serr != nil {
			return nil, serr
		}
		return e.fail(ctx, o, &StageError{Stage: StageStitch, Err: err})
	}

	if err := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingCompleted); err != nil {
		return nil, err
	}
	o.StitchingStatus = orders.StitchingCompleted
	return e.complete(ctx, o, videoURL)
}

func (e *Engine) checkPipeline(ctx context.Context, o *orders.Order) (*orders.Order, error) {
	res, err := e.runner.JobStatus(ctx, o.Job.ID)
	if err != nil {
		return o, nil
	}
	switch res.Status {
	case runpod.StateCompleted:
		if err := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingCompleted); err != nil {
			return nil, err
		}
		return e.complete(ctx, o, res.VideoURL)
	case runpod.StateFailed:
		if serr := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingFailed); serr != nil {
			return nil, serr
		}
		return e.fail(ctx, o, &StageError{Stage: StageGeneration, Err: errors.New(res.Error)})
	}
	return o, nil
}

// Complete finishes an order from an externally delivered video URL,
// for the runpod webhook path. The same idempotency and email gating
// apply as for poll-observed completion.
func (e *Engine) Complete(ctx context.Context, docID, videoURL string) (*orders.Order, error) {
	o, err := e.store.GetByDocID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if o.Status == orders.StatusFailed {
		return o, nil
	}
	if o.Job.Kind == orders.JobPipeline && o.StitchingStatus != orders.StitchingCompleted {
		if err := e.store.SetStitchingStatus(ctx, o.DocID, orders.StitchingCompleted); err != nil {
			return nil, err
		}
		o.StitchingStatus = orders.StitchingCompleted
	}
	return e.complete(ctx, o, videoURL)
}

// Fail marks an order failed on behalf of an external notification.
func (e *Engine) Fail(ctx context.Context, docID, stage string, cause error) (*orders.Order, error) {
	o, err := e.store.GetByDocID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return o, nil
	}
	return e.fail(ctx, o, &StageError{Stage: stage, Err: cause})
}

// complete persists the final video into our own storage, conditionally
// marks the order completed, and sends the notification email only when
// this call performed the null→non-null video_url transition.
func (e *Engine) complete(ctx context.Context, o *orders.Order, providerURL string) (*orders.Order, error) {
	if providerURL == "" {
		return e.fail(ctx, o, &StageError{Stage: StageGeneration, Err: errors.New("job completed without a video url")})
	}

	finalURL := e.persistVideo(ctx, o, providerURL)

	first, err := e.store.SetCompleted(ctx, o.DocID, finalURL)
	if err != nil {
		return nil, err
	}
	o.Status = orders.StatusCompleted
	if o.VideoURL == "" {
		o.VideoURL = finalURL
	}

	if first {
		e.notify(ctx, o)
	}
	return o, nil
}

// persistVideo copies the provider's output into our bucket. Output
// already under our public URL (runpod writes straight to R2) is used
// as-is. A copy failure falls back to the provider URL so a finished
// video is never lost over a storage hiccup.
func (e *Engine) persistVideo(ctx context.Context, o *orders.Order, providerURL string) string {
	if strings.HasPrefix(providerURL, e.storage.PublicURL("")) {
		return providerURL
	}

	// A re-entrant completion may have copied the video already.
	key := e.outputKey(o)
	if ok, err := e.storage.Exists(ctx, key); err == nil && ok {
		return e.storage.PublicURL(key)
	}

	data, err := e.download(ctx, providerURL)
	if err != nil {
		e.logger.Warn("video copy failed, serving provider url", "doc_id", o.DocID, "error", err)
		return providerURL
	}

	url, err := e.storage.Put(ctx, key, data, "video/mp4")
	if err != nil {
		e.logger.Warn("video upload failed, serving provider url", "doc_id", o.DocID, "error", err)
		return providerURL
	}
	return url
}

func (e *Engine) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// notify emails the watch link. Failures are logged, never returned:
// a dead mail server must not undo a finished order.
func (e *Engine) notify(ctx context.Context, o *orders.Order) {
	if e.mailer == nil || o.CustomerEmail == "" {
		return
	}
	if _, err := e.mailer.SendVideoReady(ctx, o.CustomerEmail, o.ChildName, o.VideoURL); err != nil {
		e.logger.Error("video ready email failed", "doc_id", o.DocID, "error", err)
		return
	}
	e.logger.Info("video ready email sent", "doc_id", o.DocID)
}

// fail records the terminal failure and returns the failed order. The
// stage detail goes to the log; the order carries a generic message.
func (e *Engine) fail(ctx context.Context, o *orders.Order, stageErr *StageError) (*orders.Order, error) {
	e.logger.Error("fulfillment failed", "doc_id", o.DocID, "stage", stageErr.Stage, "error", stageErr.Err)
	if err := e.store.SetFailed(ctx, o.DocID, failureMessage(stageErr.Stage)); err != nil {
		return nil, err
	}
	o.Status = orders.StatusFailed
	o.ErrorMessage = failureMessage(stageErr.Stage)
	return o, nil
}

// outputKey is the bucket key for an order's final video.
func (e *Engine) outputKey(o *orders.Order) string {
	return fmt.Sprintf("videos/%s-santa-message.mp4", o.ID)
}

// webhookFor appends the order identity to the callback URL so the
// webhook handler can find the order without a job-id scan.
func (e *Engine) webhookFor(o *orders.Order) string {
	if e.config.WebhookURL == "" {
		return ""
	}
	return e.config.WebhookURL + "?order_id=" + url.QueryEscape(o.DocID)
}
