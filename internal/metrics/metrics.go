package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesCreated counts created challenges by type and initial status
	ChallengesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_created_total",
			Help: "Total number of challenges created",
		},
		[]string{"type", "status"},
	)

	// Transitions counts persisted status transitions by target status
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_transitions_total",
			Help: "Total number of challenge status transitions",
		},
		[]string{"to"},
	)

	// AnswersRecorded counts accepted answers
	AnswersRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_answers_total",
			Help: "Total number of accepted answers",
		},
		[]string{"correct"},
	)

	// Finalizations counts finalization checks by outcome
	Finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_finalizations_total",
			Help: "Finalization checks by outcome",
		},
		[]string{"outcome"},
	)

	// FinalizationDuration measures the locked check-and-act section
	FinalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "challenge_finalization_duration_seconds",
			Help:    "Duration of the finalization critical section",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BroadcastFailures counts swallowed publish errors
	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_broadcast_failures_total",
			Help: "Total number of failed broadcasts",
		},
		[]string{"event"},
	)

	// CallbackFailures counts scoring and badge callback errors
	CallbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_callback_failures_total",
			Help: "Total number of failed scoring or badge callbacks",
		},
		[]string{"callback"},
	)

	// CacheHits counts question answer-key cache hits
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_question_cache_hits_total",
			Help: "Question answer-key cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses counts question answer-key cache misses
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_question_cache_misses_total",
			Help: "Question answer-key cache misses",
		},
		[]string{"cache"},
	)

	// WebsocketConnections tracks open websocket connections
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_websocket_connections",
			Help: "Number of open websocket connections",
		},
	)

	// RequestCounter counts HTTP requests by status code, method, and path
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challenge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// SweepExpired counts challenges expired by the sweep
	SweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_sweep_expired_total",
			Help: "Total number of challenges expired by the sweep",
		},
	)
)

// ObserveFinalization records the duration of a finalization critical section
func ObserveFinalization(startTime time.Time) {
	FinalizationDuration.Observe(time.Since(startTime).Seconds())
}
