// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OperationsTotal          = "licensing_operations_total"
	OperationDurationSeconds = "licensing_operation_duration_seconds"
	RevenueReceivedTotal     = "royalty_revenue_received_total"
	HTTPRequestTotal         = "http_requests_total"
)

var (
	PromCounters = map[string]*prometheus.CounterVec{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: OperationsTotal,
			Help: "Count of state-mutating protocol operations by outcome",
		}, []string{"operation", "status"}),
		RevenueReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RevenueReceivedTotal,
			Help: "Revenue token units received by royalty vaults",
		}, []string{"token"}),
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestTotal,
			Help: "Count of all HTTP requests",
		}, []string{"method", "status_code"}),
	}

	PromHistograms = map[string]*prometheus.HistogramVec{
		OperationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    OperationDurationSeconds,
			Help:    "Duration of state-mutating protocol operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
)

func NewHandler() http.Handler {
	registry := prometheus.NewRegistry()

	// default collectors
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	for _, counter := range PromCounters {
		registry.MustRegister(counter)
	}

	for _, histogram := range PromHistograms {
		registry.MustRegister(histogram)
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	PromCounters[OperationsTotal].WithLabelValues(operation, status).Inc()
	PromHistograms[OperationDurationSeconds].WithLabelValues(operation).Observe(duration.Seconds())
}

func AddRevenue(token string, amount uint64) {
	PromCounters[RevenueReceivedTotal].WithLabelValues(token).Add(float64(amount))
}
