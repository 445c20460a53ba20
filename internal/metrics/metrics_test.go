package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestObserveIterationCountsOutcomes(t *testing.T) {
	beforeAccepted := testutil.ToFloat64(channelsTotal.WithLabelValues(OutcomeAccepted))
	beforeSkipped := testutil.ToFloat64(channelsTotal.WithLabelValues(OutcomeSkipped))
	beforeIter := testutil.ToFloat64(iterationsTotal)

	ObserveIteration(7, 3)

	if got := testutil.ToFloat64(channelsTotal.WithLabelValues(OutcomeAccepted)) - beforeAccepted; got != 7 {
		t.Fatalf("expected 7 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(channelsTotal.WithLabelValues(OutcomeSkipped)) - beforeSkipped; got != 3 {
		t.Fatalf("expected 3 skipped, got %v", got)
	}
	if got := testutil.ToFloat64(iterationsTotal) - beforeIter; got != 1 {
		t.Fatalf("expected one iteration, got %v", got)
	}
}

func TestFileAndWorkingSetMetrics(t *testing.T) {
	before := testutil.ToFloat64(filesDroppedTotal.WithLabelValues(PassTOA))
	FileDropped(PassTOA)
	if got := testutil.ToFloat64(filesDroppedTotal.WithLabelValues(PassTOA)) - before; got != 1 {
		t.Fatalf("expected one drop, got %v", got)
	}
	SetWorkingSet(4)
	if got := testutil.ToFloat64(workingSetSize); got != 4 {
		t.Fatalf("expected working set 4, got %v", got)
	}
	ObserveFile(PassRefine, -time.Second)
	TOAWritten()
}
