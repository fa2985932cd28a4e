package testutil

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/macprof-analysis/pkg/model"
)

// AssertJSONEqual compares two JSON documents structurally and reports a
// diff on mismatch.
func AssertJSONEqual(t *testing.T, want, got string) {
	t.Helper()

	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("want is not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("got is not JSON: %v\n%s", err, got)
	}
	if diff := cmp.Diff(w, g); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// AssertTallies reports the per-symbol difference between two tallies.
func AssertTallies(t *testing.T, name string, want, got model.Tallies) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s tallies mismatch (-want +got):\n%s", name, diff)
	}
}
