// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring catalog and
// evidence retrieval. Metrics include:
//   - Request counters (by endpoint, status)
//   - Upstream call counters and latency histograms (by operation)
//   - Circuit breaker state gauge
//   - Result cache hit/miss counters
//   - Query fallback depth histogram
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for retrieval metrics
const retrievalSubsystem = "retrieval"

// RetrievalMetrics holds all Prometheus metrics for catalog and evidence
// retrieval.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring retrieval
// behavior under upstream failure. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type RetrievalMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (product_search, product_detail, store_detail,
	// batch_details, evidence_search), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// UpstreamRequestsTotal counts upstream marketplace calls by
	// operation and outcome.
	// Labels: operation (search, product_detail, store_detail),
	// status (success, error, circuit_open, timeout, not_found)
	UpstreamRequestsTotal *prometheus.CounterVec

	// UpstreamDurationSeconds measures upstream call latency.
	// Labels: operation
	UpstreamDurationSeconds *prometheus.HistogramVec

	// CircuitState reports the breaker state per upstream endpoint
	// family: 0=closed, 1=half-open, 2=open.
	// Labels: endpoint
	CircuitState *prometheus.GaugeVec

	// CacheEventsTotal counts result cache hits and misses.
	// Labels: cache (search, product_detail, store_detail),
	// event (hit, miss)
	CacheEventsTotal *prometheus.CounterVec

	// FallbackDepth measures how many query variants were tried before
	// an upstream search produced results.
	FallbackDepth prometheus.Histogram

	// DegradedSearchesTotal counts searches that fell back to
	// local-only results because the upstream failed.
	DegradedSearchesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of RetrievalMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *RetrievalMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics with the default registry.
// Should be called once at application startup.
//
// # Outputs
//
//   - *RetrievalMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *RetrievalMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates RetrievalMetrics registered with reg. Tests use a
// fresh registry per case; production goes through InitMetrics.
func NewMetrics(reg prometheus.Registerer) *RetrievalMetrics {
	factory := promauto.With(reg)

	return &RetrievalMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "upstream_requests_total",
				Help:      "Total upstream marketplace calls by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		UpstreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "circuit_state",
				Help:      "Circuit breaker state: 0=closed, 1=half-open, 2=open",
			},
			[]string{"endpoint"},
		),

		CacheEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "cache_events_total",
				Help:      "Result cache hits and misses by cache",
			},
			[]string{"cache", "event"},
		),

		FallbackDepth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "fallback_depth",
				Help:      "Query variants tried before an upstream search succeeded",
				Buckets:   []float64{1, 2, 3, 4, 5, 6},
			},
		),

		DegradedSearchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: retrievalSubsystem,
				Name:      "degraded_searches_total",
				Help:      "Searches served local-only because the upstream failed",
			},
		),
	}
}

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointProductSearch is the product search endpoint.
	EndpointProductSearch Endpoint = "product_search"

	// EndpointProductDetail is the single product detail endpoint.
	EndpointProductDetail Endpoint = "product_detail"

	// EndpointStoreDetail is the store detail endpoint.
	EndpointStoreDetail Endpoint = "store_detail"

	// EndpointBatchDetails is the batch detail enrichment endpoint.
	EndpointBatchDetails Endpoint = "batch_details"

	// EndpointEvidenceSearch is the evidence passage search endpoint.
	EndpointEvidenceSearch Endpoint = "evidence_search"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *RetrievalMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordUpstream records one upstream call outcome.
//
// # Inputs
//
//   - operation: The upstream operation (search, product_detail, store_detail).
//   - status: The outcome label (success, error, circuit_open, timeout,
//     not_found).
//   - seconds: Call duration in seconds.
func (m *RetrievalMetrics) RecordUpstream(operation, status string, seconds float64) {
	m.UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()
	m.UpstreamDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// SetCircuitState updates the breaker state gauge.
//
// # Inputs
//
//   - endpoint: The upstream endpoint family.
//   - state: 0=closed, 1=half-open, 2=open.
func (m *RetrievalMetrics) SetCircuitState(endpoint string, state int) {
	m.CircuitState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordCacheEvent records a cache hit or miss.
func (m *RetrievalMetrics) RecordCacheEvent(cache string, hit bool) {
	event := "miss"
	if hit {
		event = "hit"
	}
	m.CacheEventsTotal.WithLabelValues(cache, event).Inc()
}

// RecordFallbackDepth records how many variants a search consumed.
func (m *RetrievalMetrics) RecordFallbackDepth(variantsTried int) {
	m.FallbackDepth.Observe(float64(variantsTried))
}

// RecordDegradedSearch counts a search that lost its upstream half.
func (m *RetrievalMetrics) RecordDegradedSearch() {
	m.DegradedSearchesTotal.Inc()
}
