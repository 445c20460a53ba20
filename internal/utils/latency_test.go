package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Total() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Total())
	}
	if p := tracker.Percentile(0); p != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", p)
	}
	if p := tracker.Percentile(100); p != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", p)
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
	if mean := tracker.Mean(); mean != 30*time.Millisecond {
		t.Fatalf("expected mean 30ms, got %v", mean)
	}
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if mean := tracker.Mean(); mean != 8*time.Millisecond {
		t.Fatalf("mean should cover the retained window only, got %v", mean)
	}
	if tracker.Total() != 10 {
		t.Fatalf("expected 10 observed samples, got %d", tracker.Total())
	}
	if p := tracker.Percentile(0); p != 7*time.Millisecond {
		t.Fatalf("oldest samples should be evicted, min=%v", p)
	}
}

func TestDurationMinutesOrdersBounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	if got := DurationMinutes(end, start); got != 1.5 {
		t.Fatalf("expected 1.5 minutes, got %v", got)
	}
}
