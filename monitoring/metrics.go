package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winecast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winecast_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"route"},
	)

	// Inference metrics
	PredictInstances = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "winecast_predict_instances_per_request",
			Help:    "Number of instances per predict request",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	PredictErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winecast_predict_errors_total",
			Help: "Total number of failed predict requests",
		},
		[]string{"reason"}, // reason: validation|model_unavailable|internal
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winecast_prediction_cache_requests_total",
			Help: "Prediction cache lookups",
		},
		[]string{"result"}, // result: hit|miss
	)

	// Model lifecycle metrics
	ModelReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "winecast_model_reloads_total",
			Help: "Total number of model artifact reloads",
		},
	)

	ModelGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "winecast_model_generation",
			Help: "Generation counter of the live model",
		},
	)

	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winecast_training_runs_total",
			Help: "Total number of training runs",
		},
		[]string{"status"}, // status: success|error
	)
)

// RegisterMetrics registers all collectors with the default registry.
func RegisterMetrics() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		PredictInstances,
		PredictErrors,
		CacheHits,
		ModelReloads,
		ModelGeneration,
		TrainingRuns,
	)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
