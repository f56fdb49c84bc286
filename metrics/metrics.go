package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the watcher's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	sweepsTotal       *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepsSkipped     prometheus.Counter
	eventChecks       *prometheus.CounterVec
	fetchAttempts     prometheus.Histogram
	alertState        *prometheus.GaugeVec
	consecutiveBlocks *prometheus.GaugeVec
	notifications     *prometheus.CounterVec
	lastSweepTS       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resalewatch",
		Name:      "sweeps_total",
		Help:      "Number of sweeps by trigger and final status",
	}, []string{"trigger", "status"})
	m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resalewatch",
		Name:      "sweep_duration_seconds",
		Help:      "Time spent on one full sweep",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})
	m.sweepsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resalewatch",
		Name:      "sweeps_skipped_total",
		Help:      "Triggers ignored because a sweep was already running",
	})
	m.eventChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resalewatch",
		Name:      "event_checks_total",
		Help:      "Per-event check outcomes",
	}, []string{"outcome"})
	m.fetchAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "resalewatch",
		Name:      "fetch_attempts",
		Help:      "Attempts needed per event fetch",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
	m.alertState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "resalewatch",
		Name:      "alert_state",
		Help:      "1 when the event is in the alerted state",
	}, []string{"url", "event"})
	m.consecutiveBlocks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "resalewatch",
		Name:      "consecutive_blocks",
		Help:      "Sweeps in a row that ended blocked for the event",
	}, []string{"url", "event"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resalewatch",
		Name:      "notifications_total",
		Help:      "Notification deliveries by sink and result",
	}, []string{"sink", "result"})
	m.lastSweepTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "resalewatch",
		Name:      "last_sweep_timestamp_seconds",
		Help:      "Unix timestamp of the last finished sweep",
	})

	m.registry.MustRegister(
		m.sweepsTotal, m.sweepDuration, m.sweepsSkipped,
		m.eventChecks, m.fetchAttempts, m.alertState,
		m.consecutiveBlocks, m.notifications, m.lastSweepTS,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSweep(trigger, status string, d time.Duration) {
	m.sweepsTotal.WithLabelValues(trigger, status).Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.lastSweepTS.SetToCurrentTime()
}

func (m *Metrics) SweepSkipped() {
	m.sweepsSkipped.Inc()
}

func (m *Metrics) ObserveEvent(outcome string, attempts int) {
	m.eventChecks.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.fetchAttempts.Observe(float64(attempts))
	}
}

// SetAlertState records the alert state of the event at url; label is for display
func (m *Metrics) SetAlertState(url, label string, alerted bool) {
	v := 0.0
	if alerted {
		v = 1
	}
	m.alertState.WithLabelValues(url, label).Set(v)
}

func (m *Metrics) SetConsecutiveBlocks(url, label string, n int) {
	m.consecutiveBlocks.WithLabelValues(url, label).Set(float64(n))
}

func (m *Metrics) ObserveNotification(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(sink, result).Inc()
}
