package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Secure-channel handshake metrics
	HandshakesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_handshakes_started_total",
			Help: "Total number of secure-channel handshakes started, by role",
		},
		[]string{"role"},
	)

	HandshakesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_handshakes_completed_total",
			Help: "Total number of secure-channel handshakes that reached the running state, by role",
		},
		[]string{"role"},
	)

	HandshakesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_handshakes_failed_total",
			Help: "Total number of secure-channel handshakes that failed, by role and reason",
		},
		[]string{"role", "reason"},
	)

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ockam_handshake_duration_seconds",
			Help:    "Time from BuildMessage1/ProcessMessage1 to the running state",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSecureChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ockam_secure_channels_active",
			Help: "Number of secure channels currently in the running state on this node",
		},
	)

	ReplayedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ockam_replayed_frames_total",
			Help: "Total number of transport frames rejected by the replay window",
		},
	)

	// Credentials issuer/server metrics
	CredentialsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ockam_credentials_issued_total",
			Help: "Total number of credentials issued by the credentials-issuer worker",
		},
	)

	CredentialsDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_credentials_denied_total",
			Help: "Total number of credential requests denied, by reason",
		},
		[]string{"reason"},
	)

	CredentialsRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ockam_credentials_rate_limited_total",
			Help: "Total number of credential requests rejected by the per-peer rate limiter",
		},
	)

	CredentialsPresentedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_credentials_presented_total",
			Help: "Total number of credentials presented to the credentials-server worker, by outcome",
		},
		[]string{"outcome"},
	)

	// Node substrate metrics
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ockam_node_workers_active",
			Help: "Number of workers and processors currently registered on this node",
		},
	)

	MessagesRoutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ockam_node_messages_routed_total",
			Help: "Total number of messages successfully delivered by the router",
		},
	)

	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_node_messages_dropped_total",
			Help: "Total number of messages dropped at a mailbox boundary, by reason",
		},
		[]string{"reason"},
	)

	// ABAC authorization metrics
	AuthorizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ockam_authorizations_total",
			Help: "Total number of AbacAccessControl/Authorize decisions, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HandshakesStarted,
		HandshakesCompleted,
		HandshakesFailed,
		HandshakeDuration,
		ActiveSecureChannels,
		ReplayedFramesTotal,
		CredentialsIssuedTotal,
		CredentialsDeniedTotal,
		CredentialsRateLimitedTotal,
		CredentialsPresentedTotal,
		ActiveWorkers,
		MessagesRoutedTotal,
		MessagesDroppedTotal,
		AuthorizationsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation against a histogram, started at
// construction and read at ObserveDuration/ObserveDurationVec.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
