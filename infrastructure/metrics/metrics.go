// Package metrics provides Prometheus metrics collection for the search
// subsystem: per-RPC counters/histograms on the controller surface and
// per-pipeline gauges/counters on the indexing pipelines.
package metrics

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sonet-social/search-service/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics emitted by the service.
type Metrics struct {
	// RPC metrics (search, trending, suggestions, autocomplete, ...)
	RPCTotal          *prometheus.CounterVec
	RPCSuccess        *prometheus.CounterVec
	RPCFailed         *prometheus.CounterVec
	RPCRateLimited    *prometheus.CounterVec
	RPCAuthFailures   *prometheus.CounterVec
	RPCCacheHits      *prometheus.CounterVec
	RPCCacheMisses    *prometheus.CounterVec
	RPCResponseTimeMs *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Pipeline metrics (one set, labeled by pipeline name: notes|users)
	PipelineProcessed       *prometheus.CounterVec
	PipelineIndexed         *prometheus.CounterVec
	PipelineUpdated         *prometheus.CounterVec
	PipelineDeleted         *prometheus.CounterVec
	PipelineSkipped         *prometheus.CounterVec
	PipelineFailed          *prometheus.CounterVec
	PipelineRetries         *prometheus.CounterVec
	PipelineQueueSize       *prometheus.GaugeVec
	PipelineBatchesOK       *prometheus.CounterVec
	PipelineBatchesFailed   *prometheus.CounterVec
	PipelineMemoryUsageMB   *prometheus.GaugeVec
	PipelineActiveWorkers   *prometheus.GaugeVec

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RPCTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_total", Help: "Total number of search RPC calls."},
			[]string{"service", "rpc"},
		),
		RPCSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_success_total", Help: "Successful search RPC calls."},
			[]string{"service", "rpc"},
		),
		RPCFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_failed_total", Help: "Failed search RPC calls, labeled by error code."},
			[]string{"service", "rpc", "error_code"},
		),
		RPCRateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_rate_limited_total", Help: "RPC calls rejected by the rate limiter."},
			[]string{"service", "rpc"},
		),
		RPCAuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_auth_failures_total", Help: "RPC calls rejected by the auth gate."},
			[]string{"service", "rpc"},
		),
		RPCCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_cache_hits_total", Help: "RPC calls served from the response cache."},
			[]string{"service", "rpc"},
		),
		RPCCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_rpc_cache_misses_total", Help: "RPC calls that missed the response cache."},
			[]string{"service", "rpc"},
		),
		RPCResponseTimeMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_rpc_response_time_ms",
				Help:    "RPC response time in milliseconds.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"service", "rpc"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "search_errors_total", Help: "Total number of errors by component."},
			[]string{"service", "component", "kind"},
		),

		PipelineProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_processed_total", Help: "Tasks dequeued and processed."},
			[]string{"pipeline"},
		),
		PipelineIndexed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_indexed_total", Help: "Documents created in the backend."},
			[]string{"pipeline"},
		),
		PipelineUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_updated_total", Help: "Documents updated in the backend."},
			[]string{"pipeline"},
		),
		PipelineDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_deleted_total", Help: "Documents deleted from the backend."},
			[]string{"pipeline"},
		),
		PipelineSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_skipped_total", Help: "Tasks skipped by the indexability gate."},
			[]string{"pipeline"},
		),
		PipelineFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_failed_total", Help: "Tasks dropped to the failed-ops ring."},
			[]string{"pipeline"},
		),
		PipelineRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_retries_total", Help: "Tasks re-enqueued for retry."},
			[]string{"pipeline"},
		),
		PipelineQueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "indexing_pipeline_queue_size", Help: "Current number of tasks queued."},
			[]string{"pipeline"},
		),
		PipelineBatchesOK: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_batches_processed_total", Help: "Batches drained successfully."},
			[]string{"pipeline"},
		),
		PipelineBatchesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "indexing_pipeline_batches_failed_total", Help: "Batches that hit at least one failure."},
			[]string{"pipeline"},
		),
		PipelineMemoryUsageMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "indexing_pipeline_memory_usage_mb", Help: "Last sampled process memory usage in MB."},
			[]string{"pipeline"},
		),
		PipelineActiveWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "indexing_pipeline_active_workers", Help: "Number of worker goroutines currently running."},
			[]string{"pipeline"},
		),

		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "index_backend_requests_total", Help: "Requests issued to the index backend."},
			[]string{"operation", "status"},
		),
		BackendRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_backend_request_duration_seconds",
				Help:    "Index backend request duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds."},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service build/environment information."},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RPCTotal, m.RPCSuccess, m.RPCFailed, m.RPCRateLimited, m.RPCAuthFailures,
			m.RPCCacheHits, m.RPCCacheMisses, m.RPCResponseTimeMs,
			m.ErrorsTotal,
			m.PipelineProcessed, m.PipelineIndexed, m.PipelineUpdated, m.PipelineDeleted,
			m.PipelineSkipped, m.PipelineFailed, m.PipelineRetries, m.PipelineQueueSize,
			m.PipelineBatchesOK, m.PipelineBatchesFailed, m.PipelineMemoryUsageMB, m.PipelineActiveWorkers,
			m.BackendRequestsTotal, m.BackendRequestDuration,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordRPC records the outcome of a single controller RPC invocation.
func (m *Metrics) RecordRPC(service, rpc, errorCode string, success bool, duration time.Duration) {
	m.RPCTotal.WithLabelValues(service, rpc).Inc()
	m.RPCResponseTimeMs.WithLabelValues(service, rpc).Observe(float64(duration.Milliseconds()))
	if success {
		m.RPCSuccess.WithLabelValues(service, rpc).Inc()
		return
	}
	m.RPCFailed.WithLabelValues(service, rpc, errorCode).Inc()
}

// RecordRateLimited records an RPC call rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(service, rpc string) {
	m.RPCRateLimited.WithLabelValues(service, rpc).Inc()
}

// RecordAuthFailure records an RPC call rejected by the auth gate.
func (m *Metrics) RecordAuthFailure(service, rpc string) {
	m.RPCAuthFailures.WithLabelValues(service, rpc).Inc()
}

// RecordCacheResult records a response-cache hit or miss for an RPC.
func (m *Metrics) RecordCacheResult(service, rpc string, hit bool) {
	if hit {
		m.RPCCacheHits.WithLabelValues(service, rpc).Inc()
		return
	}
	m.RPCCacheMisses.WithLabelValues(service, rpc).Inc()
}

// RecordError records an error against a named component.
func (m *Metrics) RecordError(service, component, kind string) {
	m.ErrorsTotal.WithLabelValues(service, component, kind).Inc()
}

// RecordBackendRequest records a call to the index backend.
func (m *Metrics) RecordBackendRequest(operation, status string, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(operation, status).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetQueueSize sets the current queue depth gauge for a pipeline.
func (m *Metrics) SetQueueSize(pipeline string, size int) {
	m.PipelineQueueSize.WithLabelValues(pipeline).Set(float64(size))
}

// SetMemoryUsageMB sets the last-sampled memory usage gauge for a pipeline.
func (m *Metrics) SetMemoryUsageMB(pipeline string, mb float64) {
	m.PipelineMemoryUsageMB.WithLabelValues(pipeline).Set(mb)
}

// SetActiveWorkers sets the active-worker gauge for a pipeline.
func (m *Metrics) SetActiveWorkers(pipeline string, n int) {
	m.PipelineActiveWorkers.WithLabelValues(pipeline).Set(float64(n))
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
