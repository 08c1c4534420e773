// Package monitor exposes Prometheus metrics for ensemble fitting and
// prediction.
//
// A nil *Collector is valid and records nothing, so estimators can call it
// unconditionally.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomePanic    = "panic"
	OutcomeExcluded = "excluded"
	OutcomeRetried  = "retried"
)

// Phase label values.
const (
	PhaseFit     = "fit"
	PhasePredict = "predict"
)

// Collector holds the metric vectors of one registry.
type Collector struct {
	registry *prometheus.Registry

	FitsTotal       *prometheus.CounterVec   // outcome
	FitDuration     prometheus.Histogram     // seconds per Fit call
	TreeTasksTotal  *prometheus.CounterVec   // phase, outcome
	TreesExcluded   prometheus.Counter       // trees dropped from an aggregation
	EnsembleTrees   prometheus.Gauge         // trees in the current snapshot
	PredictDuration *prometheus.HistogramVec // operation
}

// NewCollector creates a Collector backed by its own registry. namespace
// prefixes every metric name; an empty namespace defaults to "rforest".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "rforest"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.FitsTotal = c.newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fits_total",
		Help:      "Number of ensemble Fit calls by outcome",
	}, []string{"outcome"})

	c.FitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fit_duration_seconds",
		Help:      "Wall time of ensemble Fit calls",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	c.registry.MustRegister(c.FitDuration)

	c.TreeTasksTotal = c.newCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tree_tasks_total",
		Help:      "Per-tree tasks by phase and outcome",
	}, []string{"phase", "outcome"})

	c.TreesExcluded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trees_excluded_total",
		Help:      "Trees excluded from a prediction after a failed retry",
	})
	c.registry.MustRegister(c.TreesExcluded)

	c.EnsembleTrees = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ensemble_trees",
		Help:      "Number of trees in the fitted ensemble",
	})
	c.registry.MustRegister(c.EnsembleTrees)

	c.PredictDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "predict_duration_seconds",
		Help:      "Wall time of prediction calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	c.registry.MustRegister(c.PredictDuration)

	return c
}

func (c *Collector) newCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labels)
	c.registry.MustRegister(cv)
	return cv
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFit records one Fit call.
func (c *Collector) ObserveFit(outcome string, d time.Duration, trees int) {
	if c == nil {
		return
	}
	c.FitsTotal.WithLabelValues(outcome).Inc()
	c.FitDuration.Observe(d.Seconds())
	if outcome == OutcomeOK {
		c.EnsembleTrees.Set(float64(trees))
	}
}

// TreeTask records the outcome of one per-tree task.
func (c *Collector) TreeTask(phase, outcome string) {
	if c == nil {
		return
	}
	c.TreeTasksTotal.WithLabelValues(phase, outcome).Inc()
	if phase == PhasePredict && outcome == OutcomeExcluded {
		c.TreesExcluded.Inc()
	}
}

// ObservePredict records one prediction call.
func (c *Collector) ObservePredict(operation string, d time.Duration) {
	if c == nil {
		return
	}
	c.PredictDuration.WithLabelValues(operation).Observe(d.Seconds())
}
