// Package observability provides Prometheus metrics for monitoring.
//
// The job is a short-lived batch process, so metrics live in a dedicated
// registry that is pushed to a Pushgateway at the end of a run.
package observability

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "cowswap"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	StageDuration     *prometheus.HistogramVec
	StageRecords      *prometheus.GaugeVec

	// Result metrics
	AverageImprovement prometheus.Gauge
	TradesPersisted    prometheus.Counter

	// External API metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestErrors   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered in its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Pipeline metrics
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		StageRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_records",
			Help:      "Number of records produced by each stage in the last run",
		}, []string{"stage"}),

		// Result metrics
		AverageImprovement: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "average_price_improvement",
			Help:      "Average price improvement of the last computed batch",
		}),
		TradesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "trades_persisted_total",
			Help:      "Total number of enriched trades handed to storage",
		}),

		// External API metrics
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "External API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api", "status"}),
		HTTPRequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "Total number of failed external API requests",
		}, []string{"api"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database operation errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends every metric to a Pushgateway under job, replacing the previous
// push for the same grouping.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, job).Gatherer(m.registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PipelineDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulPipeline.Set(float64(time.Now().Unix()))
	}
}

// RecordStage records the duration and output size of one pipeline stage.
func RecordStage(stage string, seconds float64, records int) {
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(seconds)
	DefaultMetrics.StageRecords.WithLabelValues(stage).Set(float64(records))
}

// RecordBatchResult records the aggregate of a computed batch.
// A NaN average is undefined and leaves the gauge untouched.
func RecordBatchResult(average float64, persisted int) {
	if !math.IsNaN(average) {
		DefaultMetrics.AverageImprovement.Set(average)
	}
	DefaultMetrics.TradesPersisted.Add(float64(persisted))
}

// RecordHTTPRequest records external API request metrics.
// status is the HTTP status code, 0 when no response was received.
func RecordHTTPRequest(api string, status int, seconds float64, err error) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(api, strconv.Itoa(status)).Observe(seconds)
	if err != nil {
		DefaultMetrics.HTTPRequestErrors.WithLabelValues(api).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
