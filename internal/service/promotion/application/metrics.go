// internal/service/promotion/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 指标注册在默认 registry 上，由 /metrics 暴露
var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "evaluations_total",
		Help:      "Number of cart evaluations by outcome.",
	}, []string{"outcome"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of a full cart evaluation including conflict resolution.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "plans_total",
		Help:      "Application plans by resolution decision and reason.",
	}, []string{"decision", "reason"})

	discountAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "discount_amount",
		Help:      "Total accepted discount per evaluated cart.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	assignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "assignments_total",
		Help:      "Experiment assignments by experiment and whether they were newly created.",
	}, []string{"experiment", "created"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Subsystem: "promotion",
		Name:      "experiment_events_total",
		Help:      "Exposure and conversion events by kind and result.",
	}, []string{"kind", "result"})
)
