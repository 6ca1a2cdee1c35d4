package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot, mutation and explorer counters.

var (
	// Snapshot builder
	SnapshotBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estate",
		Subsystem: "snapshot",
		Name:      "builds_total",
		Help:      "Total snapshot builds by result",
	}, []string{"result"})

	SnapshotRecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estate",
		Subsystem: "snapshot",
		Name:      "records_skipped_total",
		Help:      "Asset records excluded from a snapshot",
	}, []string{"reason"})

	SnapshotBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "estate",
		Subsystem: "snapshot",
		Name:      "build_duration_seconds",
		Help:      "Snapshot build duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	SnapshotAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "estate",
		Subsystem: "snapshot",
		Name:      "assets",
		Help:      "Live assets in the last published snapshot",
	})

	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "estate",
		Subsystem: "snapshot",
		Name:      "version",
		Help:      "Version of the last published snapshot",
	})

	// Mutation executor
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estate",
		Subsystem: "executor",
		Name:      "mutations_total",
		Help:      "Executed mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	MutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "estate",
		Subsystem: "executor",
		Name:      "mutation_duration_seconds",
		Help:      "Time from submission to finality",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	MutationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "estate",
		Subsystem: "executor",
		Name:      "in_flight",
		Help:      "Mutations awaiting finality",
	})

	// Explorer
	ExplorerQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estate",
		Subsystem: "explorer",
		Name:      "queries_total",
		Help:      "Explorer queries by resolution kind",
	}, []string{"kind"})
)
