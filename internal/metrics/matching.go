package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Matching pipeline Prometheus metrics.
var (
	MatchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_jobs_total",
			Help:      "Match jobs by terminal state",
		},
		[]string{"state"},
	)

	MatchJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_job_duration_seconds",
			Help:      "Wall time from job start to terminal state",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
		},
	)

	MatchJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "match_jobs_in_flight",
			Help:      "Match jobs currently running",
		},
	)

	FilterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_duration_seconds",
			Help:      "Hard filter pass duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	FilterExcludedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_excluded_total",
			Help:      "LPs excluded by the hard filter, by predicate",
		},
		[]string{"predicate"},
	)

	ScoreDefaultedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_defaulted_total",
			Help:      "Sub-scores that fell back to the neutral value",
		},
		[]string{"factor"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Match result cache lookups",
		},
		[]string{"result"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Match submissions rejected by the per-tenant limiter",
		},
	)

	ExplanationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Explanation requests by outcome",
		},
		[]string{"result"}, // "hit" / "stale" / "generated" / "failed"
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Reverse-match notifications by outcome",
		},
		[]string{"result"},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback records by polarity",
		},
		[]string{"polarity"},
	)
)

var matchOnce sync.Once

// RegisterMatchingMetrics registers matching pipeline metrics. Safe to call more than once.
func RegisterMatchingMetrics() {
	matchOnce.Do(func() {
		prometheus.MustRegister(
			MatchJobsTotal,
			MatchJobDuration,
			MatchJobsInFlight,
			FilterDuration,
			FilterExcludedTotal,
			ScoreDefaultedTotal,
			ResultCacheTotal,
			RateLimitedTotal,
			ExplanationsTotal,
			NotificationsTotal,
			FeedbackTotal,
		)
	})
}
