package defra

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid_docid", "bae-f4b2c9d1-8a3e-4f5a-9b2c-1d2e3f4a5b6c", false},
		{"valid_simple", "order_123", false},
		{"empty", "", true},
		{"injection_brace", `x") { _docID } } mutation {`, true},
		{"injection_quote", `x"`, true},
		{"whitespace", "a b", true},
		{"too_long", strings.Repeat("a", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSafeID(t *testing.T) {
	id, err := SafeID("bae-abc123")
	if err != nil {
		t.Fatalf("SafeID() error = %v", err)
	}
	if id != "bae-abc123" {
		t.Errorf("SafeID() = %q", id)
	}

	if _, err := SafeID(`"; drop`); err == nil {
		t.Error("expected error for unsafe ID")
	}
}

func TestQueryBuilder_Filter(t *testing.T) {
	query, vars := NewQuery("Order").
		Filter("session_id", "cs_test_123").
		Fields("_docID", "status", "video_url").
		Build()

	if !strings.Contains(query, "query($v0: String)") {
		t.Errorf("missing variable definition: %s", query)
	}
	if !strings.Contains(query, "filter: {session_id: {_eq: $v0}}") {
		t.Errorf("missing filter clause: %s", query)
	}
	if !strings.Contains(query, "_docID status video_url") {
		t.Errorf("missing fields: %s", query)
	}
	if vars["v0"] != "cs_test_123" {
		t.Errorf("unexpected vars: %+v", vars)
	}
}

func TestQueryBuilder_MultipleFilters(t *testing.T) {
	query, vars := NewQuery("Order").
		Filter("status", "paid").
		FilterGT("created_at", 100).
		Build()

	if !strings.Contains(query, "$v0: String") || !strings.Contains(query, "$v1: Int") {
		t.Errorf("missing variable definitions: %s", query)
	}
	if !strings.Contains(query, "status: {_eq: $v0}") {
		t.Errorf("missing eq filter: %s", query)
	}
	if !strings.Contains(query, "created_at: {_gt: $v1}") {
		t.Errorf("missing gt filter: %s", query)
	}
	if vars["v0"] != "paid" || vars["v1"] != 100 {
		t.Errorf("unexpected vars: %+v", vars)
	}
}

func TestQueryBuilder_FilterIn(t *testing.T) {
	query, vars := NewQuery("Order").
		FilterIn("status", []string{"generating", "completed"}).
		Build()

	if !strings.Contains(query, "$v0: [String!]") {
		t.Errorf("missing list variable definition: %s", query)
	}
	if !strings.Contains(query, "status: {_in: $v0}") {
		t.Errorf("missing in filter: %s", query)
	}
	got, ok := vars["v0"].([]string)
	if !ok || len(got) != 2 {
		t.Errorf("unexpected vars: %+v", vars)
	}
}

func TestQueryBuilder_OrderLimitOffset(t *testing.T) {
	query, _ := NewQuery("Order").
		OrderBy("created_at", "DESC").
		Limit(10).
		Offset(20).
		Build()

	if !strings.Contains(query, "order: {created_at: DESC}") {
		t.Errorf("missing order: %s", query)
	}
	if !strings.Contains(query, "limit: 10") {
		t.Errorf("missing limit: %s", query)
	}
	if !strings.Contains(query, "offset: 20") {
		t.Errorf("missing offset: %s", query)
	}
}

func TestQueryBuilder_NoFilters(t *testing.T) {
	query, vars := NewQuery("Order").Build()

	if strings.Contains(query, "filter:") {
		t.Errorf("unexpected filter clause: %s", query)
	}
	if strings.HasPrefix(query, "query(") {
		t.Errorf("unexpected variable definitions: %s", query)
	}
	if len(vars) != 0 {
		t.Errorf("unexpected vars: %+v", vars)
	}
	if !strings.Contains(query, "{ Order { _docID } }") {
		t.Errorf("unexpected query shape: %s", query)
	}
}

func TestQueryBuilder_WithCID(t *testing.T) {
	query, vars := NewQuery("Order").
		WithCID("bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi").
		Build()

	if !strings.Contains(query, "cid: $v0") {
		t.Errorf("missing cid argument: %s", query)
	}
	if vars["v0"] == "" {
		t.Errorf("missing cid var: %+v", vars)
	}
}
