package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool metrics
var (
	PoolWarmCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "faas",
		Subsystem: "pool",
		Name:      "warm_count",
		Help:      "Current number of warm containers queued per function",
	}, []string{"function_id"})

	PoolAcquisitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faas",
		Subsystem: "pool",
		Name:      "acquisition_latency_seconds",
		Help:      "Latency of acquiring a warm container from the pool",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	ContainerCreationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faas",
		Subsystem: "pool",
		Name:      "container_creation_errors_total",
		Help:      "Total number of container creation errors during refill",
	})

	ColdStarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faas",
		Subsystem: "pool",
		Name:      "cold_starts_total",
		Help:      "Total number of invocations that found no warm container",
	})

	StrandedContainersReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faas",
		Subsystem: "pool",
		Name:      "stranded_reaped_total",
		Help:      "Total number of stranded containers stopped and removed",
	})
)

// Invoker metrics
var (
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faas",
		Subsystem: "invoker",
		Name:      "invocations_total",
		Help:      "Total invocations by outcome",
	}, []string{"outcome"})

	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faas",
		Subsystem: "invoker",
		Name:      "duration_seconds",
		Help:      "End-to-end invocation duration (acquire through exec-complete)",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	InvocationMemoryMB = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faas",
		Subsystem: "invoker",
		Name:      "memory_usage_mb",
		Help:      "Observed per-invocation memory usage in MB",
		Buckets:   []float64{8, 16, 32, 64, 96, 128},
	})
)
