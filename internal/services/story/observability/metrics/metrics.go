// Package metrics exposes Prometheus counters for the story service. The
// counters are registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransactionsCommitted tracks committed ledger transactions by type and source.
var TransactionsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "emberleaf",
	Subsystem: "ledger",
	Name:      "transactions_total",
	Help:      "Total committed credit transactions.",
}, []string{"type", "source"})

// RefillCreditsGranted tracks credits granted by the lazy refill.
var RefillCreditsGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "emberleaf",
	Subsystem: "ledger",
	Name:      "refill_credits_total",
	Help:      "Total credits granted by time-based regeneration.",
})

// AchievementsUnlocked tracks achievement unlocks by achievement id.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "emberleaf",
	Subsystem: "achievements",
	Name:      "unlocks_total",
	Help:      "Total achievement unlocks.",
}, []string{"achievement"})

// EndingsReached tracks completed playthroughs by story id.
var EndingsReached = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "emberleaf",
	Subsystem: "playback",
	Name:      "endings_total",
	Help:      "Total story endings reached.",
}, []string{"story"})

// ChoicesRejected tracks rejected choice selections by reason code.
var ChoicesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "emberleaf",
	Subsystem: "playback",
	Name:      "choices_rejected_total",
	Help:      "Total choice selections rejected before commit.",
}, []string{"reason"})
