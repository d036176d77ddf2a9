// Package metrics provides Prometheus metrics for trajectory risk scoring.
// Scoring metrics are exposed by the serve command on /metrics; training
// metrics are filled by the train command and can be pushed or inspected
// through the same registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the risk scorer.
type Metrics struct {
	// Scoring metrics
	MLPredictions      prometheus.Counter   // Total number of risk scores computed
	MLFailures         prometheus.Counter   // Total number of scoring failures
	MLRejects          prometheus.Counter   // Total number of reject decisions
	MLTimeouts         prometheus.Counter   // Total number of external model timeouts
	MLModelAge         prometheus.Gauge     // Age of the loaded model artifact in seconds
	MLLatency          prometheus.Histogram // Scoring latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of risk scores

	// Training metrics
	RecordsLoaded       prometheus.Counter   // Run records read from the log root
	RowsDropped         prometheus.Counter   // Feature rows removed by cleaning
	ColumnsDropped      prometheus.Counter   // Feature columns removed by cleaning
	TrainingDuration    prometheus.Histogram // Wall time of a training run
	TrainingConcordance prometheus.Gauge     // Concordance index on training data
	TrainingThreshold   prometheus.Gauge     // Decision threshold of the last trained model

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_predictions_total",
			Help: "Total number of risk scores computed",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_failures_total",
			Help: "Total number of scoring failures",
		}),
		MLRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_rejects_total",
			Help: "Total number of trajectories rejected by the threshold",
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_timeouts_total",
			Help: "Total number of external model timeouts",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trajrisk_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trajrisk_latency_seconds",
			Help:    "Scoring latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trajrisk_risk_scores",
			Help:    "Distribution of risk scores",
			Buckets: prometheus.ExponentialBuckets(0.0625, 2, 10),
		}),
		RecordsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_records_loaded_total",
			Help: "Run records read from the log root",
		}),
		RowsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_rows_dropped_total",
			Help: "Feature rows removed by cleaning",
		}),
		ColumnsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_columns_dropped_total",
			Help: "Feature columns removed by cleaning",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trajrisk_training_duration_seconds",
			Help:    "Wall time of a training run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		TrainingConcordance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trajrisk_training_concordance",
			Help: "Concordance index of the last trained model on its training data",
		}),
		TrainingThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trajrisk_training_threshold",
			Help: "Decision threshold of the last trained model",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trajrisk_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObserveTraining records the outcome of a training run.
func (m *Metrics) ObserveTraining(records, rowsDropped, columnsDropped int, seconds, concordance, threshold float64) {
	m.RecordsLoaded.Add(float64(records))
	m.RowsDropped.Add(float64(rowsDropped))
	m.ColumnsDropped.Add(float64(columnsDropped))
	m.TrainingDuration.Observe(seconds)
	m.TrainingConcordance.Set(concordance)
	m.TrainingThreshold.Set(threshold)
}

// GetRejectRate returns rejects over predictions, or 0 before any
// prediction.
func (m *Metrics) GetRejectRate(gatherer prometheus.Gatherer) float64 {
	var predictions, rejects float64

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "trajrisk_predictions_total":
			for _, m := range mf.Metric {
				predictions = m.GetCounter().GetValue()
			}
		case "trajrisk_rejects_total":
			for _, m := range mf.Metric {
				rejects = m.GetCounter().GetValue()
			}
		}
	}

	if predictions == 0 {
		return 0
	}
	return rejects / predictions
}
