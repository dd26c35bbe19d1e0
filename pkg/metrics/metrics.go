package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkQueue metrics, mirroring workq.c's active/total bookkeeping.
	WorkQueueActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slurmcore_workq_active_workers",
			Help: "Number of workq workers currently executing a work unit",
		},
	)

	WorkQueueQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slurmcore_workq_queue_depth",
			Help: "Number of work units waiting in the workq FIFO",
		},
	)

	WorkQueueSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmcore_workq_submitted_total",
			Help: "Total number of work units submitted to the workq",
		},
	)

	WorkQueueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmcore_workq_rejected_total",
			Help: "Total number of work units rejected because the workq was quiesced",
		},
	)

	// Conmgr metrics.
	ConmgrConnectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slurmcore_conmgr_connections",
			Help: "Number of connections currently tracked by conmgr, by transport",
		},
		[]string{"transport"},
	)

	ConmgrBytesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmcore_conmgr_bytes_read_total",
			Help: "Total bytes read off conmgr connections, by transport",
		},
		[]string{"transport"},
	)

	ConmgrBytesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmcore_conmgr_bytes_written_total",
			Help: "Total bytes written to conmgr connections, by transport",
		},
		[]string{"transport"},
	)

	ConmgrPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slurmcore_conmgr_poll_duration_seconds",
			Help:    "Time spent in a single poll() wake-to-dispatch cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConmgrConnectionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmcore_conmgr_connections_closed_total",
			Help: "Total connections closed, by reason",
		},
		[]string{"reason"},
	)

	// ControlProtocol RPC metrics.
	ControlRPCsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmcore_control_rpcs_total",
			Help: "Total ControlProtocol RPCs handled, by rpc type and outcome",
		},
		[]string{"rpc_type", "outcome"},
	)

	ControlRPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slurmcore_control_rpc_duration_seconds",
			Help:    "ControlProtocol RPC handling duration in seconds, by rpc type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rpc_type"},
	)

	ControlRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slurmcore_control_state_change_retries_total",
			Help: "Total retry attempts made by RetryStateChange across all state-changing RPCs",
		},
	)

	// SackDaemon metrics.
	SackRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurmcore_sack_requests_total",
			Help: "Total SackDaemon requests handled, by rpc and outcome",
		},
		[]string{"rpc", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkQueueActiveWorkers,
		WorkQueueQueueDepth,
		WorkQueueSubmittedTotal,
		WorkQueueRejectedTotal,
		ConmgrConnectionsTotal,
		ConmgrBytesReadTotal,
		ConmgrBytesWrittenTotal,
		ConmgrPollDuration,
		ConmgrConnectionsClosedTotal,
		ControlRPCsTotal,
		ControlRPCDuration,
		ControlRetriesTotal,
		SackRequestsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
