package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netflow"

var (
	// Stream
	LogsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logs_received_total",
		Help:      "Total number of transfer logs received from the node",
	})

	MalformedLogs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_logs_total",
		Help:      "Total number of logs dropped by the decoder",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_reconnects_total",
		Help:      "Total number of stream sessions that ended and were retried",
	})

	DeepReorgs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deep_reorgs_detected_total",
		Help:      "Finalized checkpoints found off the canonical chain",
	})

	// Finalizer
	LateTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "late_transfers_dropped_total",
		Help:      "Transfers delivered for blocks that were already released",
	})

	DiscardedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discarded_blocks_total",
		Help:      "Buffered blocks dropped because a reorg superseded them",
	})

	BlocksFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_finalized_total",
		Help:      "Blocks with transfers released by the finalizer and applied",
	})

	PendingBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_blocks",
		Help:      "Blocks currently buffered below the confirmation depth",
	})

	ObservedHead = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observed_head_block",
		Help:      "Highest block number observed on the stream",
	})

	FinalizedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "finalized_block",
		Help:      "Highest block number considered final",
	})

	// Ledger
	TransfersApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_applied_total",
		Help:      "Transfers committed to the ledger by tag",
	}, []string{"tag"})

	DuplicateTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_transfers_total",
		Help:      "Transfers skipped because they were already applied",
	})

	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "apply_block_duration_seconds",
		Help:      "Time taken to apply one finalized block",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	LedgerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_apply_retries_total",
		Help:      "Failed ledger applications that were retried",
	})

	// Transport
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Applied transfers that could not be published downstream",
	})
)
