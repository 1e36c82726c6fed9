// Package metrics wires the pipeline's Prometheus registry and serves it
// (plus a liveness probe) over chi. The web dashboard/configuration
// surface is a separate, unbuilt concern — only the metrics/health HTTP
// surface lives here.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swapsentry_ingested_records_total",
		Help: "Raw transactions read off the durable stream, by outcome.",
	}, []string{"outcome"})

	SwapsInferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swapsentry_swaps_inferred_total",
		Help: "Swap inference outcomes, by side and whether confidence cleared the floor.",
	}, []string{"side", "accepted"})

	TriggersFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swapsentry_triggers_fired_total",
		Help: "Trigger rule firings, by rule name.",
	}, []string{"rule"})

	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swapsentry_alerts_dispatched_total",
		Help: "Alert delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	BackpressureMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swapsentry_backpressure_mode",
		Help: "Current process-wide mode: 0=NORMAL, 1=DEGRADED, 2=CRITICAL.",
	})

	TokenStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swapsentry_tokens_in_state",
		Help: "Number of tracked mints currently in each state.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(IngestedRecords, SwapsInferred, TriggersFired, AlertsDispatched, BackpressureMode, TokenStateGauge)
}

// NewServer returns the chi router serving /metrics and /healthz.
func NewServer() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
