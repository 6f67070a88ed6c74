package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Runs counts finished search runs by policy and status.
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evrp_runs_total", Help: "Search runs by policy and final status."},
		[]string{"policy", "status"},
	)
	// RunsInFlight is the number of searches currently executing.
	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "evrp_runs_in_flight", Help: "Search runs currently executing."},
	)
	// RunDuration records wall time per finished run.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "evrp_run_duration_seconds", Help: "Search run wall time in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800}},
		[]string{"policy"},
	)
	// BestCost is the cost of the best solution of the last run per instance.
	BestCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "evrp_best_cost", Help: "Best solution cost of the last finished run."},
		[]string{"instance"},
	)
	// Iterations counts search iterations by outcome.
	Iterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evrp_iterations_total", Help: "Search iterations by acceptance outcome."},
		[]string{"outcome"},
	)
	// OperatorSelections counts how often each destroy/repair operator was drawn.
	OperatorSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evrp_operator_selections_total", Help: "Operator draws by operator name."},
		[]string{"operator"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers every collector on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Runs)
		Registry.MustRegister(RunsInFlight)
		Registry.MustRegister(RunDuration)
		Registry.MustRegister(BestCost)
		Registry.MustRegister(Iterations)
		Registry.MustRegister(OperatorSelections)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveRun records the outcome counters of one finished search.
func ObserveRun(instance, policy, status string, seconds, bestCost float64, outcomes map[string]int, selects map[string]int) {
	Runs.WithLabelValues(policy, status).Inc()
	RunDuration.WithLabelValues(policy).Observe(seconds)
	if status == "succeeded" {
		BestCost.WithLabelValues(instance).Set(bestCost)
	}
	for outcome, n := range outcomes {
		Iterations.WithLabelValues(outcome).Add(float64(n))
	}
	for op, n := range selects {
		OperatorSelections.WithLabelValues(op).Add(float64(n))
	}
}
