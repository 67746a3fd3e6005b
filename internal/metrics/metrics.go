package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the dispatch service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route pattern, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // OptimizationRuns counts optimiser calls by kind (route, assignment) and outcome
    OptimizationRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "optimization_runs_total", Help: "Optimisation runs by kind and status."},
        []string{"kind", "status"},
    )
    // OptimizationDuration records wall time per optimiser call
    OptimizationDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "optimization_duration_seconds", Help: "Optimisation wall time in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5}},
        []string{"kind"},
    )
    // RouteDistanceKm observes total path length of produced routes
    RouteDistanceKm = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "route_distance_km", Help: "Total route length in km.", Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}},
    )
    // RouteSavedKm observes how much refinement shortened the construction route
    RouteSavedKm = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "route_saved_km", Help: "Distance saved by refinement over the greedy route in km.", Buckets: []float64{0, .5, 1, 5, 10, 50, 100}},
    )
    // AssignmentUnassigned reports teams and jobs left out of the latest assignment
    AssignmentUnassigned = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "assignment_unassigned", Help: "Unassigned teams and jobs in the latest assignment run."},
        []string{"side"},
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
    // FeedClients is the number of open SSE and websocket subscribers
    FeedClients = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "feed_clients", Help: "Open live feed connections by transport."},
        []string{"transport"},
    )
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(OptimizationRuns)
        Registry.MustRegister(OptimizationDuration)
        Registry.MustRegister(RouteDistanceKm)
        Registry.MustRegister(RouteSavedKm)
        Registry.MustRegister(AssignmentUnassigned)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(FeedClients)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
