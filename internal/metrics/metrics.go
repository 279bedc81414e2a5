package metrics

import (
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// unknownEventLabel collapses caller-supplied event types so the label set
// stays bounded.
const unknownEventLabel = "UNKNOWN"

type Metrics struct {
	eventsLogged     *prometheus.CounterVec
	eventLogFailures prometheus.Counter
	terminations     prometheus.Counter
	activeSessions   prometheus.Gauge
	detectorFailures prometheus.Counter
	detectionLatency prometheus.Histogram
	riskLevels       *prometheus.CounterVec
}

// New registers the proctoring collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsLogged: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "proctoring", Name: "events_logged_total", Help: "Proctoring events appended to the log by type."},
			[]string{"event_type"},
		),
		eventLogFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "proctoring", Name: "event_log_failures_total", Help: "Proctoring event writes that failed and were dropped."},
		),
		terminations: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "proctoring", Name: "terminations_total", Help: "Sessions terminated for a hard violation."},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "proctoring", Name: "active_sessions", Help: "Live session controllers."},
		),
		detectorFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "proctoring", Subsystem: "vision", Name: "failures_total", Help: "Face detector initialization and runtime failures."},
		),
		detectionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{Namespace: "proctoring", Subsystem: "vision", Name: "detection_seconds", Help: "Latency of a single face detection pass.", Buckets: prometheus.DefBuckets},
		),
		riskLevels: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "proctoring", Name: "risk_recomputations_total", Help: "Risk recomputations by resulting level."},
			[]string{"level"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.eventsLogged,
			m.eventLogFailures,
			m.terminations,
			m.activeSessions,
			m.detectorFailures,
			m.detectionLatency,
			m.riskLevels,
		)
	}

	return m
}

func (m *Metrics) EventLogged(eventType models.EventType) {
	if m == nil {
		return
	}
	label := unknownEventLabel
	if eventType.Known() {
		label = eventType.String()
	}
	m.eventsLogged.WithLabelValues(label).Inc()
}

func (m *Metrics) EventLogFailed() {
	if m == nil {
		return
	}
	m.eventLogFailures.Inc()
}

func (m *Metrics) RiskRecomputed(level string) {
	if m == nil {
		return
	}
	m.riskLevels.WithLabelValues(level).Inc()
}

func (m *Metrics) SessionTerminated() {
	if m == nil {
		return
	}
	m.terminations.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) DetectorFailed() {
	if m == nil {
		return
	}
	m.detectorFailures.Inc()
}

func (m *Metrics) ObserveDetection(d time.Duration) {
	if m == nil {
		return
	}
	m.detectionLatency.Observe(d.Seconds())
}
