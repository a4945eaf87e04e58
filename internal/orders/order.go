package orders

import (
	"fmt"
	"time"

	"github.com/santagram/santagram/internal/script"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusGenerating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the order needs no further processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StitchingStatus tracks the chunked-video assembly phase.
type StitchingStatus string

const (
	StitchingNone       StitchingStatus = "none"
	StitchingPending    StitchingStatus = "pending"
	StitchingProcessing StitchingStatus = "processing"
	StitchingCompleted  StitchingStatus = "completed"
	StitchingFailed     StitchingStatus = "failed"
)

// JobKind identifies which generation path an order's job belongs to.
type JobKind string

const (
	JobNone     JobKind = "none"
	JobSingle   JobKind = "single"   // one Replicate lipsync prediction
	JobChunks   JobKind = "chunks"   // ordered Replicate predictions, one per audio chunk
	JobPipeline JobKind = "pipeline" // one RunPod generate_and_stitch job
)

// JobRef identifies the external generation job(s) linked to an order.
// Exactly one shape is populated per kind: ID for single/pipeline,
// ChunkIDs for chunks, neither for none.
type JobRef struct {
	Kind     JobKind
	ID       string
	ChunkIDs []string
}

// SingleJob returns a JobRef for one lipsync prediction.
func SingleJob(id string) JobRef {
	return JobRef{Kind: JobSingle, ID: id}
}

// ChunkJobs returns a JobRef for an ordered set of chunk predictions.
func ChunkJobs(ids []string) JobRef {
	return JobRef{Kind: JobChunks, ChunkIDs: ids}
}

// PipelineJob returns a JobRef for a RunPod generate_and_stitch job.
func PipelineJob(id string) JobRef {
	return JobRef{Kind: JobPipeline, ID: id}
}

// IsZero reports whether no job has been linked yet.
func (r JobRef) IsZero() bool {
	return r.Kind == "" || r.Kind == JobNone
}

// IDs returns the job identifiers for persistence, in order.
func (r JobRef) IDs() []string {
	switch r.Kind {
	case JobSingle, JobPipeline:
		if r.ID == "" {
			return nil
		}
		return []string{r.ID}
	case JobChunks:
		return r.ChunkIDs
	}
	return nil
}

// JobRefFromColumns reconstructs a JobRef from its persisted form.
func JobRefFromColumns(kind string, ids []string) (JobRef, error) {
	switch JobKind(kind) {
	case JobNone, "":
		return JobRef{Kind: JobNone}, nil
	case JobSingle:
		if len(ids) != 1 {
			return JobRef{}, fmt.Errorf("single job requires exactly one id, got %d", len(ids))
		}
		return SingleJob(ids[0]), nil
	case JobPipeline:
		if len(ids) != 1 {
			return JobRef{}, fmt.Errorf("pipeline job requires exactly one id, got %d", len(ids))
		}
		return PipelineJob(ids[0]), nil
	case JobChunks:
		if len(ids) == 0 {
			return JobRef{}, fmt.Errorf("chunks job requires at least one id")
		}
		return ChunkJobs(ids), nil
	}
	return JobRef{}, fmt.Errorf("unknown job kind: %q", kind)
}

// Order is a single Santa video order.
type Order struct {
	DocID string // DefraDB document ID
	ID    string // application-level order id (uuid)

	PaymentSessionID string
	CustomerEmail    string

	ChildName      string
	ChildAge       *int
	ChildGender    string
	Achievements   string
	Interests      string
	SpecialMessage string
	MessageType    string

	Status          Status
	Script          string
	AudioURL        string
	VideoURL        string
	Job             JobRef
	StitchingStatus StitchingStatus
	ErrorMessage    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Personalization returns the script inputs for this order.
func (o *Order) Personalization() script.Personalization {
	age := 0
	if o.ChildAge != nil {
		age = *o.ChildAge
	}
	return script.Personalization{
		ChildName:      o.ChildName,
		ChildAge:       age,
		ChildGender:    o.ChildGender,
		Achievements:   o.Achievements,
		Interests:      o.Interests,
		SpecialMessage: o.SpecialMessage,
		MessageType:    o.MessageType,
	}
}
