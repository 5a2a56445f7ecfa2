// Package metrics exposes Prometheus instrumentation for the engine.
// Served at /metrics in the Prometheus text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LegPairs counts terminal leg pairs by intent and outcome.
	LegPairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basisbot_leg_pairs_total",
			Help: "Terminal leg pairs by intent and outcome",
		},
		[]string{"account", "intent", "outcome"},
	)

	// AdmissionSkips counts candidates skipped per admission check.
	AdmissionSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basisbot_admission_skips_total",
			Help: "Open candidates skipped, split by reason",
		},
		[]string{"account", "reason"},
	)

	// Reconciliations counts forced unwinds of one-sided fills.
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basisbot_reconciliations_total",
			Help: "Unwinds of one-sided fills",
		},
		[]string{"account"},
	)

	// OpenPositions is the current number of open hedges.
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basisbot_open_positions",
			Help: "Currently open hedges",
		},
		[]string{"account"},
	)

	// BestYield is the top annualized yield observed in the last ranking pass.
	BestYield = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basisbot_best_yield_pct",
			Help: "Best annualized yield in the last ranking pass, percent",
		},
		[]string{"account"},
	)

	// Degraded flags no-new-opens mode after collaborator connectivity loss.
	Degraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basisbot_degraded",
			Help: "1 while the instance refuses new opens due to feed loss",
		},
		[]string{"account"},
	)
)

func init() {
	prometheus.MustRegister(
		LegPairs,
		AdmissionSkips,
		Reconciliations,
		OpenPositions,
		BestYield,
		Degraded,
	)
}
