package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Matching metrics
	MatchAttempts *prometheus.CounterVec
	MatchLatency  prometheus.Histogram

	// Handoff metrics
	OtpChallengesIssued prometheus.Counter
	OtpVerifications    *prometheus.CounterVec

	// Telemetry metrics
	TelemetryAlerts  *prometheus.CounterVec
	TelemetrySamples prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed prometheus.Counter
	OutboxEventsFailed    prometheus.Counter
	OutboxLatency         prometheus.Histogram

	// Event intake metrics
	EventsConsumed *prometheus.CounterVec
	EventsFailed   *prometheus.CounterVec

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MatchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_attempts_total",
			Help:      "Matching engine runs by outcome",
		}, []string{"outcome"}),
		MatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent matching a listing",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		OtpChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_challenges_issued_total",
			Help:      "OTP challenges generated",
		}),
		OtpVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by outcome",
		}, []string{"outcome"}),
		TelemetryAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_alerts_total",
			Help:      "Cold-chain alerts raised by kind",
		}, []string{"kind"}),
		TelemetrySamples: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_samples_total",
			Help:      "Telemetry samples processed",
		}),
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Outbox events published successfully",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Outbox events that failed publication",
		}),
		OutboxLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox batches",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Broker events consumed by channel",
		}, []string{"channel"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Broker events whose handler failed after retries",
		}, []string{"channel"}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Best-effort notifications sent by channel",
		}, []string{"channel"}),
		NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Best-effort notifications that failed by channel",
		}, []string{"channel"}),
	}
}
