package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeQueue struct{ n int }

func (f fakeQueue) Len() int { return f.n }

func TestCollectQueueDepth(t *testing.T) {
	c := NewCollector(fakeQueue{n: 7}, "")
	c.collect()

	if got := testutil.ToFloat64(FanoutQueueDepth); got != 7 {
		t.Errorf("FanoutQueueDepth = %v, want 7", got)
	}
}

func TestCollectLivenessAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alive")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(nil, path)
	c.collect()

	if got := testutil.ToFloat64(LivenessAge); got < 0 || got > 60 {
		t.Errorf("LivenessAge = %v, want a small positive age", got)
	}
}

func TestCollectMissingLivenessFile(t *testing.T) {
	LivenessAge.Set(-1)

	c := NewCollector(nil, filepath.Join(t.TempDir(), "never-touched"))
	c.collect()

	// A missing file leaves the gauge untouched.
	if got := testutil.ToFloat64(LivenessAge); got != -1 {
		t.Errorf("LivenessAge = %v, want -1", got)
	}
}
