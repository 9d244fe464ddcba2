// Package metrics exposes the agent's Prometheus metrics:
//   - agent_orders_total{side,kind}        – orders placed
//   - agent_converts_total{outcome}        – convert-to-market-exit outcomes
//   - agent_retries_total{endpoint}        – retry attempts by endpoint
//   - agent_breaker_state{endpoint}        – breaker state (0 closed, 1 open, 2 half-open)
//   - agent_session_renewals_total{result} – session renewals by result
//   - agent_task_runs_total{task,result}   – scheduled task runs
//
// Served at /metrics in Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_orders_total",
			Help: "Orders placed",
		},
		[]string{"side", "kind"},
	)

	Converts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_converts_total",
			Help: "Convert-to-market-exit outcomes",
		},
		[]string{"outcome"},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_retries_total",
			Help: "Retry attempts by logical endpoint",
		},
		[]string{"endpoint"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"endpoint"},
	)

	SessionRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_session_renewals_total",
			Help: "Session renewals by result",
		},
		[]string{"result"},
	)

	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_task_runs_total",
			Help: "Scheduled task runs by result",
		},
		[]string{"task", "result"},
	)
)

func init() {
	prometheus.MustRegister(Orders, Converts, Retries, BreakerState, SessionRenewals, TaskRuns)
}

// Serve starts the metrics endpoint on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
