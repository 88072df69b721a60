package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PinRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_pin_redemptions_total",
			Help: "PIN redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	PinsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_pins_issued_total",
			Help: "Number of PINs issued",
		},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Number of quiz sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_completed_total",
			Help: "Number of quiz sessions completed by completion type",
		},
		[]string{"completion"},
	)

	SessionsAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_abandoned_total",
			Help: "Number of quiz sessions abandoned",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_active_sessions",
			Help: "Sessions started on this instance and not yet finished",
		},
	)

	ScorePercent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_score_percent",
			Help:    "Distribution of final scores",
			Buckets: []float64{10, 20, 30, 40, 50, 56, 60, 71, 80, 86, 90, 100},
		},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_request_duration_seconds",
			Help:    "Duration of quiz API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
