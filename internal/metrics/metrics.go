package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OracleComparisons counts face comparisons by result (match, no_match, error).
	OracleComparisons = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_oracle_comparisons_total",
		Help: "Face comparison oracle invocations by result.",
	}, []string{"result"})

	// Resolutions counts roster resolutions by outcome (matched, no_match, unavailable).
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_resolutions_total",
		Help: "Identity resolutions by outcome.",
	}, []string{"outcome"})

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faceattend_resolution_duration_seconds",
		Help:    "Time spent resolving a probe against a class roster.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// Transitions counts attendance submissions by intent and outcome code.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_transitions_total",
		Help: "Attendance submissions by intent and outcome.",
	}, []string{"intent", "outcome"})

	// TransitionConflicts counts optimistic-write conflicts that forced a retry.
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_transition_conflicts_total",
		Help: "Conditional record writes that lost a race and were retried.",
	})
)
