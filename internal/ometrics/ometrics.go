// Package ometrics declares the prometheus collectors ouroboros exposes,
// mirroring cuemby-warren/pkg/metrics's package-level var-block-plus-init
// registration pattern.
package ometrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Page cache lookups served without an eviction.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Page cache lookups that required a read from the backing file.",
	})

	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Pages evicted from the page pool.",
	})

	CacheDirtyPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ouroboros",
		Subsystem: "cache",
		Name:      "dirty_pages",
		Help:      "Pages currently marked dirty in the page pool.",
	})

	TransactionsCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "txn",
		Name:      "committed_total",
		Help:      "Transactions committed, labeled by dataset.",
	}, []string{"dataset"})

	TransactionsCanceledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "txn",
		Name:      "canceled_total",
		Help:      "Transactions canceled (rolled back), labeled by dataset.",
	}, []string{"dataset"})

	JournalRecoveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "journal",
		Name:      "recoveries_total",
		Help:      "Crash-recovery replays performed on dataset open, labeled by dataset.",
	}, []string{"dataset"})

	LockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ouroboros",
		Subsystem: "lock",
		Name:      "wait_seconds",
		Help:      "Time spent waiting to acquire a lock, labeled by lock kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	LockTimeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ouroboros",
		Subsystem: "lock",
		Name:      "timeouts_total",
		Help:      "Lock acquisitions that gave up after the configured timeout, labeled by lock kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		CacheDirtyPages,
		TransactionsCommittedTotal,
		TransactionsCanceledTotal,
		JournalRecoveriesTotal,
		LockWaitSeconds,
		LockTimeoutsTotal,
	)
}
