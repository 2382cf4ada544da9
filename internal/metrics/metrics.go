// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts scheduler runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solaralpha_runs_total",
		Help: "Total scheduler runs by outcome",
	}, []string{"outcome"})

	// RunsRefused counts run triggers refused because one was in flight.
	RunsRefused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solaralpha_runs_refused_total",
		Help: "Run triggers refused because a run was already in flight",
	})

	// TradesTotal counts trades reaching a terminal state.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solaralpha_trades_total",
		Help: "Trades by terminal state",
	}, []string{"state"})

	// AllocationsTotal counts allocations created.
	AllocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solaralpha_allocations_total",
		Help: "Allocations created",
	})

	// DistributedAmount accumulates distributed currency per recipient.
	DistributedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solaralpha_distributed_amount_total",
		Help: "Distributed amount in account currency by recipient",
	}, []string{"recipient"})

	// LedgerAppendRetries counts append attempts that had to be retried.
	LedgerAppendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solaralpha_ledger_append_retries_total",
		Help: "Ledger append retries after persistence failures",
	})

	// LedgerHeadSeq tracks the chain head sequence number.
	LedgerHeadSeq = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solaralpha_ledger_head_seq",
		Help: "Current ledger head sequence number",
	})

	// ChainVerifyFailures counts failed chain verifications.
	ChainVerifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solaralpha_chain_verify_failures_total",
		Help: "Hash chain verifications that found a bad entry",
	})
)

// Serve starts the Prometheus listener on addr. The returned server can
// be shut down by the caller.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}
