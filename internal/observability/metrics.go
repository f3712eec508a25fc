package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the chip vault.
type Metrics struct {
	// --- Vault Processing ---
	VaultOpsApplied  *prometheus.CounterVec
	VaultOpsRejected *prometheus.CounterVec
	VaultOpDuration  *prometheus.HistogramVec
	VaultJournals    *prometheus.CounterVec
	VaultSequence    prometheus.Gauge

	// --- Solvency ---
	TotalChips        prometheus.Gauge
	TotalCollateral   prometheus.Gauge
	SolvencyDeficit   prometheus.Gauge
	AuthorizedServers prometheus.Gauge

	// --- Bank Transfers ---
	BankTransfers       *prometheus.CounterVec
	BankTransferFailed  *prometheus.CounterVec
	WithdrawalRollbacks prometheus.Counter

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	DedupLRUSize prometheus.Gauge

	// --- Ingestion ---
	IngestToApply *prometheus.HistogramVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot & Replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Vault Processing
		VaultOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_ops_applied_total",
			Help: "Operations successfully applied by the vault",
		}, []string{"op"}),

		VaultOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_ops_rejected_total",
			Help: "Operations rejected (dedup, authorization, validation)",
		}, []string{"op", "reason"}),

		VaultOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chipvault_op_duration_seconds",
			Help:    "Time to apply a single vault operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		VaultJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		VaultSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_sequence",
			Help: "Current global sequence number",
		}),

		// Solvency
		TotalChips: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_total_chips",
			Help: "Chips outstanding",
		}),

		TotalCollateral: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_total_collateral",
			Help: "Collateral held in custody",
		}),

		SolvencyDeficit: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_solvency_deficit",
			Help: "Chips outstanding in excess of collateral (0 when solvent)",
		}),

		AuthorizedServers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_authorized_servers",
			Help: "Size of the authorized-server set",
		}),

		// Bank Transfers
		BankTransfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_bank_transfers_total",
			Help: "Collateral transfers executed",
		}, []string{"direction"}),

		BankTransferFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_bank_transfer_failures_total",
			Help: "Collateral transfers that failed",
		}, []string{"direction"}),

		WithdrawalRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_withdrawal_rollbacks_total",
			Help: "Withdrawals rolled back after a failed payout",
		}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chipvault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chipvault_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chipvault_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_persist_backpressure_total",
			Help: "Times the vault blocked on the persist channel",
		}),

		// Idempotency
		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		// Ingestion
		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chipvault_ingest_to_apply_seconds",
			Help:    "NATS receive to vault apply complete",
			Buckets: ingestBuckets,
		}, []string{"event_type"}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chipvault_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chipvault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot & Replay
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chipvault_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chipvault_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chipvault_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chipvault_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chipvault_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
