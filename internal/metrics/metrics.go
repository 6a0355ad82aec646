package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route template, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "route", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "route", "status"},
    )

    // Optimizations counts single route optimizations by distance method and outcome
    Optimizations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimizations by distance method and status."},
        []string{"method", "status"},
    )
    // DistanceFallbacks counts geometric fallbacks by reason
    DistanceFallbacks = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "distance_fallbacks_total", Help: "Geometric distance fallbacks by reason."},
        []string{"reason"},
    )
    // ExternalMatrixLatency tracks external distance matrix calls in seconds
    ExternalMatrixLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "external_matrix_latency_seconds", Help: "External distance matrix call latency.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}},
        []string{"status"},
    )
    // DistanceCacheLookups counts distance cache lookups by backend and result
    DistanceCacheLookups = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "distance_cache_lookups_total", Help: "Distance cache lookups by result."},
        []string{"result"},
    )
    // BatchGroups counts batch driver-date groups by status
    BatchGroups = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "batch_groups_total", Help: "Batch optimization groups by status."},
        []string{"status"},
    )
    // CapacityEfficiency records packing efficiency percentages
    CapacityEfficiency = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "capacity_efficiency_percent", Help: "Capacity planner efficiency.", Buckets: []float64{10, 25, 40, 50, 60, 75, 90, 100}},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to Registry. Safe to call repeatedly.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration)
        Registry.MustRegister(Optimizations, DistanceFallbacks, ExternalMatrixLatency, DistanceCacheLookups)
        Registry.MustRegister(BatchGroups, CapacityEfficiency)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
