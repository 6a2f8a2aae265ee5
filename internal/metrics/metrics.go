// Package metrics provides Prometheus metrics collection for the prediction engine.
// It defines the prediction, batch, training, geocoding and HTTP metrics that are
// exposed via the /metrics endpoint of the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Total number of successful predictions
	PredictionFailures prometheus.Counter   // Total number of failed predictions
	PredictionLatency  prometheus.Histogram // Single prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of prediction confidence

	// Batch metrics
	BatchRowsTotal prometheus.Counter // Total number of batch rows scored
	BatchFailures  prometheus.Counter // Total number of aborted batches

	// Training metrics
	TrainingRuns     prometheus.Counter   // Total number of model trainings
	TrainingDuration prometheus.Histogram // Training duration in seconds
	ModelMAE         prometheus.Gauge     // Holdout mean absolute error of the current model
	ModelR2          prometheus.Gauge     // Holdout R² of the current model

	// Geocoding metrics
	GeocodeRequests  prometheus.Counter // Total number of geocode lookups
	GeocodeFallbacks prometheus.Counter // Lookups answered from the built-in city table

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec // Requests by route pattern, method and status
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful price predictions",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed price predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Single prediction latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of prediction confidence",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		BatchRowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_rows_total",
			Help: "Total number of batch rows scored",
		}),
		BatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_failures_total",
			Help: "Total number of aborted batch predictions",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_training_runs_total",
			Help: "Total number of model trainings",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ModelMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_mae",
			Help: "Holdout mean absolute error of the current model",
		}),
		ModelR2: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_r2",
			Help: "Holdout coefficient of determination of the current model",
		}),
		GeocodeRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Total number of geocode lookups",
		}),
		GeocodeFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "geocode_fallbacks_total",
			Help: "Geocode lookups answered from the built-in city table",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
	}
}

// ErrorRate returns failed predictions over all prediction attempts, or 0
// when nothing has been recorded yet.
func (m *Metrics) ErrorRate() float64 {
	ok := counterValue(m.PredictionsTotal)
	failed := counterValue(m.PredictionFailures)
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
