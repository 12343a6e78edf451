package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the zone annotator.
// A nil *Metrics records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	sessionsOpened     prometheus.Counter
	sessionsActive     prometheus.Gauge
	zonesSaved         *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	snapshotsTotal     prometheus.Counter
	mediaErrors        *prometheus.CounterVec
	alertsTotal        *prometheus.CounterVec
	streamSubscribers  prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zone_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zone_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zone_sessions_opened_total",
			Help: "Total number of editor sessions opened",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zone_sessions_active",
			Help: "Number of editor sessions currently open",
		}),
		zonesSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_saved_total",
			Help: "Total number of zones saved, by mode",
		}, []string{"mode"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_validation_failures_total",
			Help: "Total number of rejected saves, by rule",
		}, []string{"rule"}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zone_snapshots_total",
			Help: "Total number of snapshots captured",
		}),
		mediaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_media_errors_total",
			Help: "Total number of media rejections and load failures, by reason",
		}, []string{"reason"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zone_alerts_total",
			Help: "Total number of alert events received, by type",
		}, []string{"type"}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zone_alert_stream_subscribers",
			Help: "Number of connected alert stream clients",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsOpened,
		m.sessionsActive,
		m.zonesSaved,
		m.validationFailures,
		m.snapshotsTotal,
		m.mediaErrors,
		m.alertsTotal,
		m.streamSubscribers,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// SessionOpened records a new editor session.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsOpened.Inc()
	}
}

// SetActiveSessions sets the open sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.sessionsActive.Set(float64(n))
	}
}

// ZoneSaved records a successful save.
func (m *Metrics) ZoneSaved(mode string) {
	if m != nil {
		m.zonesSaved.WithLabelValues(mode).Inc()
	}
}

// ValidationFailed records a rejected save.
func (m *Metrics) ValidationFailed(rule string) {
	if m != nil {
		m.validationFailures.WithLabelValues(rule).Inc()
	}
}

// SnapshotCaptured records a captured snapshot.
func (m *Metrics) SnapshotCaptured() {
	if m != nil {
		m.snapshotsTotal.Inc()
	}
}

// MediaError records a media rejection or load failure.
func (m *Metrics) MediaError(reason string) {
	if m != nil {
		m.mediaErrors.WithLabelValues(reason).Inc()
	}
}

// AlertReceived records an alert event.
func (m *Metrics) AlertReceived(kind string) {
	if m != nil {
		m.alertsTotal.WithLabelValues(kind).Inc()
	}
}

// SetStreamSubscribers sets the connected stream clients gauge.
func (m *Metrics) SetStreamSubscribers(n int) {
	if m != nil {
		m.streamSubscribers.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
