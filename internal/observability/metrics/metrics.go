package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storelens_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storelens_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storelens_sync_duration_seconds",
		Help:    "Duration of tenant sync passes",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"trigger", "result"})

	syncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storelens_sync_records_total",
		Help: "Records written by sync passes",
	}, []string{"kind"})

	syncsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storelens_syncs_in_flight",
		Help: "Number of tenant syncs currently running in this process",
	})

	webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storelens_webhooks_total",
		Help: "Platform webhooks received by topic and result",
	}, []string{"topic", "result"})

	platformRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storelens_platform_request_duration_seconds",
		Help:    "Duration of commerce platform API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "status"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storelens_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"dependency"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveSync records one sync pass. trigger is "manual", "scheduled" or "install".
func ObserveSync(trigger, result string, duration time.Duration) {
	syncDuration.WithLabelValues(trigger, result).Observe(duration.Seconds())
}

// AddSyncedRecords counts records of one kind written by a sync
func AddSyncedRecords(kind string, n int) {
	syncRecords.WithLabelValues(kind).Add(float64(n))
}

// SyncStarted and SyncFinished track the in-flight gauge
func SyncStarted()  { syncsInFlight.Inc() }
func SyncFinished() { syncsInFlight.Dec() }

// ObserveWebhook counts a received webhook
func ObserveWebhook(topic, result string) {
	webhooksReceived.WithLabelValues(topic, result).Inc()
}

// ObservePlatformRequest records a platform API call
func ObservePlatformRequest(resource, status string, duration time.Duration) {
	platformRequests.WithLabelValues(resource, status).Observe(duration.Seconds())
}

// SetBreakerState exports a circuit breaker state
func SetBreakerState(dependency string, state int) {
	breakerState.WithLabelValues(dependency).Set(float64(state))
}
