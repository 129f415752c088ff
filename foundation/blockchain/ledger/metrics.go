package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusUTXOCount   prometheus.Gauge
	prometheusUTXOSpent   prometheus.Counter
	prometheusUTXOCreated prometheus.Counter

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusUTXOCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "ledger",
			Name:      "utxo_count",
			Help:      "Number of unspent outputs in the ledger",
		},
	)
	prometheusUTXOSpent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "ledger",
			Name:      "utxo_spent",
			Help:      "Number of outputs marked spent",
		},
	)
	prometheusUTXOCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "ledger",
			Name:      "utxo_created",
			Help:      "Number of outputs registered",
		},
	)
}
