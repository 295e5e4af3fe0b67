package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation path.
var (
	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "promo_engine",
		Name:      "evaluations_total",
		Help:      "Number of cart evaluations served.",
	})

	EvaluationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "promo_engine",
		Name:      "evaluation_cache_hits_total",
		Help:      "Evaluations answered from the short-TTL cache.",
	})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "promo_engine",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of a full cart evaluation.",
		Buckets:   prometheus.DefBuckets,
	})

	SecurityViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promo_engine",
		Name:      "security_violations_total",
		Help:      "Fail-closed validator rejections by error code.",
	}, []string{"code"})
)

// Health monitor.
var (
	HealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promo_engine",
		Name:      "health_score",
		Help:      "System health score from the last monitor sweep (0-100).",
	})

	PromotionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "promo_engine",
		Name:      "promotions_by_status",
		Help:      "Promotion counts by derived status.",
	}, []string{"status"})

	ActiveConflicts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promo_engine",
		Name:      "active_conflicts",
		Help:      "Conflicting active promotion pairs seen in the last sweep.",
	})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "promo_engine",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of background sweeps.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})
)
