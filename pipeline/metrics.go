package pipeline

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus metrics
type Metrics struct {
	Targets           *prometheus.CounterVec
	Skips             *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	GeneratorFailures *prometheus.CounterVec
	Running           prometheus.Gauge
}

// NewMetrics registers the pipeline metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Targets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_targets_processed_total",
			Help: "Targets processed, by outcome (commented, skipped, stopped)",
		}, []string{"outcome"}),

		Skips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_skips_total",
			Help: "Skipped targets, by reason",
		}, []string{"reason"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"stage"}),

		GeneratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_generator_failures_total",
			Help: "Content generator failures, by operation",
		}, []string{"operation"}),

		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agent_running",
			Help: "1 while a run is in progress",
		}),
	}
}

func (m *Metrics) observe(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) skipped(reason string) {
	m.Skips.WithLabelValues(reasonLabel(reason)).Inc()
}

// reasonLabel keeps the fixed part of a skip reason so label cardinality stays bounded
func reasonLabel(reason string) string {
	label, _, _ := strings.Cut(reason, ":")
	return label
}
