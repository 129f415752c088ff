package state

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainHeight     prometheus.Gauge
	prometheusBlocksMined     prometheus.Counter
	prometheusBlockSize       prometheus.Histogram
	prometheusMempoolSize     prometheus.Gauge
	prometheusTransactions    *prometheus.CounterVec
	prometheusMiningDuration  prometheus.Histogram
	prometheusMiningExhausted prometheus.Counter
	prometheusHashRate        prometheus.Gauge
	prometheusIntegrity       prometheus.Gauge

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "chain_height",
			Help:      "Number of the latest block in the chain",
		},
	)
	prometheusBlocksMined = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "blocks_committed",
			Help:      "Number of blocks committed to the chain",
		},
	)
	prometheusBlockSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "block_size_bytes",
			Help:      "Encoded size of committed blocks",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
	)
	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "mempool_size",
			Help:      "Number of transactions waiting to be mined",
		},
	)
	prometheusTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "transactions",
			Help:      "Number of submitted transactions by result",
		},
		[]string{"result"},
	)
	prometheusMiningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "mining_duration_seconds",
			Help:      "Time spent searching for a block nonce",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
	prometheusMiningExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "mining_exhausted",
			Help:      "Number of nonce windows searched without a solution",
		},
	)
	prometheusHashRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "hash_rate",
			Help:      "Hashes per second observed for the last mined block",
		},
	)
	prometheusIntegrity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utxochain",
			Subsystem: "state",
			Name:      "chain_integrity",
			Help:      "1 when the last integrity check passed, 0 otherwise",
		},
	)
}

// recordBlock updates the chain metrics for a committed block.
func recordBlock(block database.Block) {
	prometheusChainHeight.Set(float64(block.Header.Number))
	prometheusBlocksMined.Inc()
	prometheusBlockSize.Observe(float64(block.Size))
}
