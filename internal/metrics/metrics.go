// Package metrics exports session outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

const namespace = "ffkit"

// Outcome label values of sessions_total.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
	OutcomeFailed    = "failed"
)

// Metrics observes session runs. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry
	sessions *prometheus.CounterVec
	running  *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of finished sessions",
			},
			[]string{"kind", "outcome"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_running",
				Help:      "Number of sessions currently running",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Histogram of session run duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.sessions,
		m.running,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) SessionStarted(s *session.Session) {
	m.running.WithLabelValues(s.Kind().String()).Inc()
}

// SessionEnded is called once s is terminal. A session that never started
// running is counted but not timed.
func (m *Metrics) SessionEnded(s *session.Session) {
	kind := s.Kind().String()
	if !s.StartTime().IsZero() {
		m.running.WithLabelValues(kind).Dec()
	}
	m.sessions.WithLabelValues(kind, Outcome(s)).Inc()
	if d := s.Duration(); d >= 0 {
		m.duration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// Outcome classifies a terminal session.
func Outcome(s *session.Session) string {
	rc, ok := s.ReturnCode()
	switch {
	case !ok:
		return OutcomeFailed
	case rc.IsSuccess():
		return OutcomeSuccess
	case rc.IsCancel():
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
