package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the collateral vault service.
type Metrics struct {
	// --- Ledger operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Channel & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter

	// --- Persistence ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistBatchDur       prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter

	// --- Mirror ---
	MirrorUpserts *prometheus.CounterVec
	MirrorErrors  prometheus.Counter

	// --- Reconciler ---
	ReconcilePasses       prometheus.Counter
	ReconcilePassDuration prometheus.Histogram
	ReconcileDrift        prometheus.Counter
	ReconcileSnapshots    prometheus.Counter
	ReconcileFetchRetries prometheus.Counter
	ReconcileOwnerErrors  prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ioBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Vault operations successfully committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Vault operations rejected (validation, authorization, balance)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "Time to apply a single vault operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_records_written_total",
			Help: "Vault records written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: ioBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_retry_total",
			Help: "Persistence retries",
		}),

		MirrorUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_mirror_upserts_total",
			Help: "Mirror store upserts",
		}, []string{"source"}),

		MirrorErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_mirror_errors_total",
			Help: "Mirror store write failures",
		}),

		ReconcilePasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_passes_total",
			Help: "Completed reconciliation passes",
		}),

		ReconcilePassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_reconcile_pass_duration_seconds",
			Help:    "Full reconciliation pass duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		}),

		ReconcileDrift: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_drift_total",
			Help: "Owners found with mirror drift",
		}),

		ReconcileSnapshots: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_snapshots_total",
			Help: "Balance snapshots recorded",
		}),

		ReconcileFetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_fetch_retries_total",
			Help: "Authoritative fetch retries during reconciliation",
		}),

		ReconcileOwnerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_reconcile_owner_errors_total",
			Help: "Owners skipped after fetch retries were exhausted",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
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
