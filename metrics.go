package pdfquiz

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StageRecorder receives stage outcomes from the pipeline.
type StageRecorder interface {
	ObserveStage(stage Stage, err error, elapsed time.Duration)
	ObserveCandidates(accepted, rejected int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(Stage, error, time.Duration) {}
func (nopRecorder) ObserveCandidates(int, int)              {}

// Metrics is a StageRecorder backed by Prometheus collectors on a private
// registry.
type Metrics struct {
	registry       *prometheus.Registry
	StageTotal     *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	CandidateTotal *prometheus.CounterVec
	UploadsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfquiz_stage_total",
				Help: "Pipeline stage executions by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfquiz_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		CandidateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfquiz_candidates_total",
				Help: "Parsed MCQ candidates by validation verdict.",
			},
			[]string{"verdict"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfquiz_uploads_total",
				Help: "Upload requests by HTTP status.",
			},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(m.StageTotal, m.StageDuration, m.CandidateTotal, m.UploadsTotal)
	return m
}

// ObserveStage implements StageRecorder.
func (m *Metrics) ObserveStage(stage Stage, err error, elapsed time.Duration) {
	m.StageTotal.WithLabelValues(string(stage), outcomeLabel(err)).Inc()
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// ObserveCandidates implements StageRecorder.
func (m *Metrics) ObserveCandidates(accepted, rejected int) {
	m.CandidateTotal.WithLabelValues(string(ActionAccept)).Add(float64(accepted))
	m.CandidateTotal.WithLabelValues(string(ActionReject)).Add(float64(rejected))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if pe, ok := AsError(err); ok {
		return pe.Code()
	}
	return "error"
}
