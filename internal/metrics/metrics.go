package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinical-intake/internal/intake"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeEmpty   = "empty"
)

// Metrics holds the Prometheus collectors for the intake service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsStarted    *prometheus.CounterVec
	RecordsFinalized   *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_sessions_started_total",
				Help: "Total number of intake sessions that compiled a queue and started",
			},
			[]string{"department"},
		),
		RecordsFinalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_records_finalized_total",
				Help: "Total number of grouped records persisted",
			},
			[]string{"department"},
		),
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_generations_total",
				Help: "Total number of narrative generation attempts",
			},
			[]string{"department", "outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_generation_duration_seconds",
				Help:    "Narrative generation latency in seconds",
				Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"department"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_errors_total",
				Help: "Total number of coded errors returned to clients",
			},
			[]string{"code"},
		),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// Handler returns an HTTP handler exposing the given registry.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted(department string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(label(department)).Inc()
}

func (m *Metrics) RecordFinalized(department string) {
	if m == nil {
		return
	}
	m.RecordsFinalized.WithLabelValues(label(department)).Inc()
}

// Generation records one generation attempt and its latency.
func (m *Metrics) Generation(department, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	department = label(department)
	m.Generations.WithLabelValues(department, outcome).Inc()
	m.GenerationDuration.WithLabelValues(department).Observe(took.Seconds())
}

func (m *Metrics) Error(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}

// OtherDepartment labels departments outside the known set, keeping label
// cardinality bounded whatever clients send.
const OtherDepartment = "other"

func label(department string) string {
	if strings.TrimSpace(department) == "" {
		return intake.GeneralDepartment
	}
	if d, ok := intake.CanonicalDepartment(department); ok {
		return d
	}
	return OtherDepartment
}
