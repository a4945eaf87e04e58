package orders

import (
	"testing"
)

func TestStatus_Valid(t *testing.T) {
	valid := []Status{StatusPending, StatusPaid, StatusGenerating, StatusCompleted, StatusFailed}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	for _, s := range []Status{"", "unknown", "PAID"} {
		if s.Valid() {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusPaid, false},
		{StatusGenerating, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestJobRef_IDs(t *testing.T) {
	tests := []struct {
		name string
		ref  JobRef
		want int
	}{
		{"none", JobRef{Kind: JobNone}, 0},
		{"zero", JobRef{}, 0},
		{"single", SingleJob("pred-1"), 1},
		{"pipeline", PipelineJob("run-1"), 1},
		{"chunks", ChunkJobs([]string{"a", "b", "c"}), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.ref.IDs()); got != tt.want {
				t.Errorf("len(IDs()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJobRef_IsZero(t *testing.T) {
	if !(JobRef{}).IsZero() {
		t.Error("empty ref should be zero")
	}
	if !(JobRef{Kind: JobNone}).IsZero() {
		t.Error("none ref should be zero")
	}
	if SingleJob("p1").IsZero() {
		t.Error("single ref should not be zero")
	}
}

func TestJobRefFromColumns(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		ids     []string
		want    JobRef
		wantErr bool
	}{
		{"none", "none", nil, JobRef{Kind: JobNone}, false},
		{"empty kind", "", nil, JobRef{Kind: JobNone}, false},
		{"single", "single", []string{"pred-1"}, SingleJob("pred-1"), false},
		{"single no ids", "single", nil, JobRef{}, true},
		{"single two ids", "single", []string{"a", "b"}, JobRef{}, true},
		{"pipeline", "pipeline", []string{"run-1"}, PipelineJob("run-1"), false},
		{"chunks", "chunks", []string{"a", "b"}, ChunkJobs([]string{"a", "b"}), false},
		{"chunks empty", "chunks", nil, JobRef{}, true},
		{"unknown kind", "batch", []string{"a"}, JobRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JobRefFromColumns(tt.kind, tt.ids)
			if (err != nil) != tt.wantErr {
				t.Fatalf("JobRefFromColumns() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Kind != tt.want.Kind || got.ID != tt.want.ID || len(got.ChunkIDs) != len(tt.want.ChunkIDs) {
				t.Errorf("JobRefFromColumns() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestJobRef_RoundTrip(t *testing.T) {
	refs := []JobRef{
		SingleJob("pred-1"),
		PipelineJob("run-abc"),
		ChunkJobs([]string{"c0", "c1", "c2"}),
	}
	for _, ref := range refs {
		got, err := JobRefFromColumns(string(ref.Kind), ref.IDs())
		if err != nil {
			t.Fatalf("round trip error for %+v: %v", ref, err)
		}
		if got.Kind != ref.Kind {
			t.Errorf("kind mismatch: %q != %q", got.Kind, ref.Kind)
		}
		if len(got.IDs()) != len(ref.IDs()) {
			t.Errorf("ids mismatch: %v != %v", got.IDs(), ref.IDs())
		}
	}
}

func TestOrder_Personalization(t *testing.T) {
	age := 7
	o := &Order{
		ChildName:      "Emma",
		ChildAge:       &age,
		Achievements:   "You learned to ride a bike!",
		Interests:      "dinosaurs",
		SpecialMessage: "Love, Mom and Dad",
		MessageType:    "bedtime",
	}

	p := o.Personalization()
	if p.ChildName != "Emma" || p.ChildAge != 7 {
		t.Errorf("unexpected personalization: %+v", p)
	}
	if p.MessageType != "bedtime" {
		t.Errorf("message type = %q", p.MessageType)
	}

	// Nil age maps to zero.
	o.ChildAge = nil
	if o.Personalization().ChildAge != 0 {
		t.Error("nil age should map to 0")
	}
}
