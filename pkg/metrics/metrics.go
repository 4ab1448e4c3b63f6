// Package metrics holds the prometheus collectors for a compositing session.
// Collectors live on an application-owned registry rather than the global
// default one. A nil *Registry is valid and records nothing.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Registry bundles the collectors and the registry they are registered on.
type Registry struct {
	registry *prometheus.Registry

	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	OperatorRunsTotal  *prometheus.CounterVec
	OperatorDuration   *prometheus.HistogramVec
	GraphNodes         prometheus.Gauge
	GraphEdges         prometheus.Gauge
	EditsTotal         *prometheus.CounterVec
	ExportedImages     prometheus.Counter
	ProjectLoadsTotal  *prometheus.CounterVec
}

// NewRegistry creates a registry with every collector initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initEvalMetrics()
	r.initCanvasMetrics()
	return r
}

func (r *Registry) initEvalMetrics() {
	r.EvaluationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_evaluations_total",
			Help: "Total number of graph evaluations",
		},
		[]string{"status"}, // ok, error
	)

	r.EvaluationDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_evaluation_duration_seconds",
			Help:    "Duration of full graph evaluations in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	r.OperatorRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_operator_runs_total",
			Help: "Total number of operator invocations",
		},
		[]string{"kind", "status"},
	)

	r.OperatorDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_operator_duration_seconds",
			Help:    "Duration of single operator invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
}

func (r *Registry) initCanvasMetrics() {
	r.GraphNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_graph_nodes",
			Help: "Number of nodes in the graph, slots included",
		},
	)

	r.GraphEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_graph_edges",
			Help: "Number of edges in the graph, structural edges included",
		},
	)

	r.EditsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_edits_total",
			Help: "Total number of editing operations",
		},
		[]string{"op", "status"},
	)

	r.ExportedImages = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "strata_exported_images_total",
			Help: "Total number of images written by export",
		},
	)

	r.ProjectLoadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_project_loads_total",
			Help: "Total number of project loads",
		},
		[]string{"status"},
	)
}

// Prometheus returns the underlying registry, e.g. for an HTTP handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// RecordEvaluation records one evaluation run.
func (r *Registry) RecordEvaluation(err error, duration time.Duration) {
	if r == nil {
		return
	}
	r.EvaluationsTotal.WithLabelValues(status(err)).Inc()
	r.EvaluationDuration.Observe(duration.Seconds())
}

// RecordOperator records one operator invocation.
func (r *Registry) RecordOperator(kind string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	r.OperatorRunsTotal.WithLabelValues(kind, status(err)).Inc()
	r.OperatorDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEdit records an editing operation.
func (r *Registry) RecordEdit(op string, err error) {
	if r == nil {
		return
	}
	r.EditsTotal.WithLabelValues(op, status(err)).Inc()
}

// SetGraphSize publishes the current node and edge counts.
func (r *Registry) SetGraphSize(nodes, edges int) {
	if r == nil {
		return
	}
	r.GraphNodes.Set(float64(nodes))
	r.GraphEdges.Set(float64(edges))
}

// RecordExport counts written images.
func (r *Registry) RecordExport(n int) {
	if r == nil {
		return
	}
	r.ExportedImages.Add(float64(n))
}

// RecordLoad records a project load attempt.
func (r *Registry) RecordLoad(err error) {
	if r == nil {
		return
	}
	r.ProjectLoadsTotal.WithLabelValues(status(err)).Inc()
}

// WriteText dumps every metric family in the prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
