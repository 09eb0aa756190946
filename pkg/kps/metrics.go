package kps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outer iterations, labelled by how the iteration ended.
	IterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kps_iterations_total",
			Help: "Total number of kPS basin escapes",
		},
		[]string{"outcome"},
	)

	PathsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kps_transition_paths_total",
			Help: "Total number of completed A<-B transition paths",
		},
	)

	BasinSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kps_basin_nodes",
			Help:    "Number of basin nodes per iteration",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	EliminatedNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kps_eliminated_nodes",
			Help:    "Number of nodes eliminated by the graph transformation per iteration",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// Hops reconstructed per escape; long basin residencies reach very large counts.
	EscapeHops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kps_escape_hops",
			Help:    "Elementary transitions per basin escape",
			Buckets: prometheus.ExponentialBuckets(1, 10, 12),
		},
	)

	TransformationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kps_transformation_duration_seconds",
			Help:    "Wall time of basin setup, graph transformation and reverse randomisation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
	)
)
