package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	if d := timer.Duration(); d < 20*time.Millisecond {
		t.Errorf("Timer.Duration() = %v, want >= 20ms", d)
	}

	// Duration keeps growing, the timer is not consumed by reading it.
	first := timer.Duration()
	time.Sleep(5 * time.Millisecond)
	if second := timer.Duration(); second <= first {
		t.Errorf("Duration should increase: first=%v second=%v", first, second)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "inst07")
}
