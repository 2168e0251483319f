// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// prometheusOrganizedTransactions counts organized transactions by the
	// last stage they reached and their result.
	prometheusOrganizedTransactions *prometheus.CounterVec

	// prometheusOrganizedBlocks counts organized blocks by result.
	prometheusOrganizedBlocks *prometheus.CounterVec

	// prometheusOrganizeBlock measures block organization.
	prometheusOrganizeBlock prometheus.Histogram

	// prometheusReorganizationDepth tracks the number of blocks popped by
	// each reorganization.
	prometheusReorganizationDepth prometheus.Histogram

	// prometheusMempoolSize tracks the number of pooled transactions.
	prometheusMempoolSize prometheus.Gauge

	// prometheusBlockPoolSize tracks the number of pooled blocks.
	prometheusBlockPoolSize prometheus.Gauge

	// prometheusFetchTemplate measures template extraction.
	prometheusFetchTemplate prometheus.Histogram
)

var prometheusMetricsInitOnce sync.Once

// initPrometheusMetrics registers the organizer metrics once.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusOrganizedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "transactions",
			Help:      "Number of transactions organized by stage reached and result",
		},
		[]string{"stage", "result"},
	)

	prometheusOrganizedBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "blocks",
			Help:      "Number of blocks organized by result",
		},
		[]string{"result"},
	)

	prometheusOrganizeBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "organize_block_seconds",
			Help:      "Histogram of block organization",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	prometheusReorganizationDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "reorganization_depth",
			Help:      "Number of main chain blocks popped by each reorganization",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 100},
		},
	)

	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "mempool_size",
			Help:      "Number of transactions in the memory pool",
		},
	)

	prometheusBlockPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "block_pool_size",
			Help:      "Number of orphan and side chain blocks in the block pool",
		},
	)

	prometheusFetchTemplate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "btcchain",
			Subsystem: "organizer",
			Name:      "fetch_template_seconds",
			Help:      "Histogram of block template extraction",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)
}
