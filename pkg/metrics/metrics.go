package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "scanner"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	RPC = "rpc"
)

// Error type constants.
const (
	ErrTypeRPC     = "rpc"
	ErrTypeFetch   = "fetch"
	ErrTypeFlush   = "flush"
	ErrTypeLoad    = "load"
	ErrTypePublish = "publish"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple scanner instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 1 for Ethereum mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Scan state
	cursor           prometheus.Gauge
	addressSetSize   prometheus.Gauge
	pendingBatchSize prometheus.Gauge

	// Processing counters
	blocksProcessed     prometheus.Counter
	blocksSkipped       prometheus.Counter
	addressesDiscovered prometheus.Counter
	flushes             *prometheus.CounterVec
	fetchAttempts       *prometheus.CounterVec
	errors              *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Processing latency
	blockProcessingDuration prometheus.Histogram
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cursor",
			Help:      "Last block handled by the descending scan",
		}),
		addressSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "address_set_size",
			Help:      "Number of distinct addresses known to the scanner",
		}),
		pendingBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_batch_size",
			Help:      "Number of discovered addresses not yet flushed",
		}),
		blocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks fetched and processed",
		}),
		blocksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_skipped_total",
			Help:      "Total number of blocks skipped after exhausting fetch retries",
		}),
		addressesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "addresses_discovered_total",
			Help:      "Total number of new addresses discovered during this run",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flushes_total",
			Help:      "Total checkpoint flushes by status",
		}, []string{"status"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_attempts_total",
			Help:      "Total block fetch attempts by status",
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			// Buckets cover typical RPC latencies: 1ms, 5ms, 10ms, 25ms, 50ms,
			// 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		blockProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "block_processing_duration_seconds",
			Help:      "Time to fetch and extract a single block",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	err := errors.Join(
		reg.Register(m.cursor),
		reg.Register(m.addressSetSize),
		reg.Register(m.pendingBatchSize),
		reg.Register(m.blocksProcessed),
		reg.Register(m.blocksSkipped),
		reg.Register(m.addressesDiscovered),
		reg.Register(m.flushes),
		reg.Register(m.fetchAttempts),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.blockProcessingDuration),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// SetCursor records the last block handled by the scan.
func (m *Metrics) SetCursor(cursor uint64) {
	if m == nil {
		return
	}
	m.cursor.Set(float64(cursor))
}

// BlockProcessed records a successfully processed block, the number of new
// addresses it contributed and how long it took.
func (m *Metrics) BlockProcessed(newAddresses int, seconds float64) {
	if m == nil {
		return
	}
	m.blocksProcessed.Inc()
	m.addressesDiscovered.Add(float64(newAddresses))
	m.blockProcessingDuration.Observe(seconds)
}

// BlockSkipped records a block abandoned after exhausting fetch retries.
func (m *Metrics) BlockSkipped() {
	if m == nil {
		return
	}
	m.blocksSkipped.Inc()
	m.errors.WithLabelValues(ErrTypeFetch).Inc()
}

// UpdateStoreMetrics updates the address set and pending batch gauges.
func (m *Metrics) UpdateStoreMetrics(setSize, pendingSize int) {
	if m == nil {
		return
	}
	m.addressSetSize.Set(float64(setSize))
	m.pendingBatchSize.Set(float64(pendingSize))
}

// RecordFlush records a checkpoint flush outcome.
func (m *Metrics) RecordFlush(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errors.WithLabelValues(ErrTypeFlush).Inc()
	}
	m.flushes.WithLabelValues(status).Inc()
}

// RecordFetchAttempt records the outcome of a single block fetch attempt.
func (m *Metrics) RecordFetchAttempt(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.fetchAttempts.WithLabelValues(status).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errors.WithLabelValues(ErrTypeRPC).Inc()
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}
