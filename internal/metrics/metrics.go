package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeAccepted labels channels folded into the template sum.
	OutcomeAccepted = "accepted"
	// OutcomeSkipped labels channels rejected by the weight or fit gates.
	OutcomeSkipped = "skipped"

	// PassRefine labels work done during refinement iterations.
	PassRefine = "refine"
	// PassTOA labels work done during the TOA emission pass.
	PassTOA = "toa"
)

var (
	iterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autotoa",
			Name:      "iterations_total",
			Help:      "Completed template refinement iterations.",
		},
	)

	channelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autotoa",
			Name:      "channels_total",
			Help:      "Channels visited during refinement, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	filesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autotoa",
			Name:      "files_dropped_total",
			Help:      "Observation files permanently removed from the working set.",
		},
		[]string{"pass"},
	)

	toasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autotoa",
			Name:      "toas_total",
			Help:      "TOAs written by the emission pass.",
		},
	)

	workingSetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autotoa",
			Name:      "working_set_files",
			Help:      "Observation files remaining in the working set.",
		},
	)

	fileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autotoa",
			Name:      "file_seconds",
			Help:      "Time to load and process one observation file.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"pass"},
	)
)

// Register attaches autotoa collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		iterationsTotal,
		channelsTotal,
		filesDroppedTotal,
		toasTotal,
		workingSetSize,
		fileDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIteration records one finished iteration and its channel outcomes.
func ObserveIteration(accepted, skipped int) {
	iterationsTotal.Inc()
	channelsTotal.WithLabelValues(OutcomeAccepted).Add(float64(accepted))
	channelsTotal.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
}

// ObserveFile records how long one observation took in the given pass.
func ObserveFile(pass string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	fileDurationSeconds.WithLabelValues(pass).Observe(duration.Seconds())
}

// FileDropped counts a working-set removal.
func FileDropped(pass string) {
	filesDroppedTotal.WithLabelValues(pass).Inc()
}

// SetWorkingSet publishes the current working-set size.
func SetWorkingSet(n int) {
	workingSetSize.Set(float64(n))
}

// TOAWritten counts one emitted TOA.
func TOAWritten() {
	toasTotal.Inc()
}
