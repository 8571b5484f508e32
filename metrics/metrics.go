package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// DecisionsTotal counts terminal pipeline outcomes.
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "decisions_total",
		Help:      "Total number of intake decisions, labeled by status and reason code.",
	}, []string{"status", "reason_code"})

	// DecisionDurationSeconds is the end-to-end time of one pipeline run.
	DecisionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "decision_duration_seconds",
		Help:      "Time to reach an intake decision, including collaborator calls.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"status"})

	VisionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "vision_duration_seconds",
		Help:      "Latency of vision model label calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})

	// VisionFallbackTotal counts label calls that degraded to the fallback.
	VisionFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "vision_fallback_total",
		Help:      "Total number of vision label calls answered by the fallback, labeled by cause.",
	}, []string{"reason"})

	// ImageMatchTotal counts image consistency outcomes by the rule that decided them.
	ImageMatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "image_match_total",
		Help:      "Total number of image/category consistency checks, labeled by deciding rule.",
	}, []string{"rule"})

	// DuplicatesTotal counts duplicates found, by fingerprint kind.
	DuplicatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "duplicates_total",
		Help:      "Total number of duplicate submissions detected, labeled by fingerprint kind.",
	}, []string{"kind"})

	// ImageHashFailuresTotal counts image fetch/decode/hash failures (the check fails open).
	ImageHashFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "image_hash_failures_total",
		Help:      "Total number of images that could not be fetched, decoded or hashed.",
	})

	PersistErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "persist_errors_total",
		Help:      "Total number of failed decision saves, labeled by saver.",
	}, []string{"saver"})

	// PersistDroppedTotal counts decisions dropped because the persistence queue was full.
	PersistDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "persist_dropped_total",
		Help:      "Total number of decisions dropped because the persistence queue was full.",
	})

	PersistQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "persist_queue_depth",
		Help:      "Current number of decisions waiting to be persisted.",
	})
)

// Register registers intake metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			DecisionsTotal,
			DecisionDurationSeconds,
			VisionDurationSeconds,
			VisionFallbackTotal,
			ImageMatchTotal,
			DuplicatesTotal,
			ImageHashFailuresTotal,
			PersistErrorsTotal,
			PersistDroppedTotal,
			PersistQueueDepth,
		)
	})
}
