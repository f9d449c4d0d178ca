package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Leadership metrics
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dcc_is_leader",
			Help: "Whether this peer currently holds the group leader lease (1 = leader, 0 = follower)",
		},
	)

	LeaseRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcc_lease_renewals_total",
			Help: "Total number of leader lease acquire/renew attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Bucket / queue metrics
	BucketsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dcc_buckets_total",
			Help: "Total number of buckets by status",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dcc_queue_depth",
			Help: "Number of queued bucket IDs by project",
		},
		[]string{"project"},
	)

	BucketsAssignedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dcc_buckets_assigned_total",
			Help: "Total number of buckets handed out by the assignment RPC",
		},
	)

	// Scan metrics
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dcc_scan_duration_seconds",
			Help:    "Time taken for one leader scan cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScanCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dcc_scan_cycles_total",
			Help: "Total number of leader scan cycles completed",
		},
	)

	BucketsReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dcc_buckets_reclaimed_total",
			Help: "Total number of buckets marked processing_failed by scan confirmation",
		},
	)

	// Assignment RPC metrics
	AssignmentLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dcc_assignment_latency_seconds",
			Help:    "Time taken to answer an assignment RPC, including jitter",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Executor metrics
	TaskRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dcc_task_retries_total",
			Help: "Total number of tasks re-run after an abort signal",
		},
	)

	BucketExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcc_bucket_execution_duration_seconds",
			Help:    "Wall-clock duration of a bucket's full task-list execution",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"project", "bucket_name", "result"},
	)

	// Notification metrics
	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcc_notifications_sent_total",
			Help: "Total number of notifications sent by channel and kind",
		},
		[]string{"channel", "kind"},
	)
)

func init() {
	prometheus.MustRegister(
		IsLeader,
		LeaseRenewalsTotal,
		BucketsTotal,
		QueueDepth,
		BucketsAssignedTotal,
		ScanDuration,
		ScanCyclesTotal,
		BucketsReclaimedTotal,
		AssignmentLatency,
		TaskRetriesTotal,
		BucketExecutionDuration,
		NotificationsSentTotal,
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
