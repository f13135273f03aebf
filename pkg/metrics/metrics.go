package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	IndexesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loom_indexes_total",
			Help: "Total number of indexes by placement",
		},
		[]string{"placement"},
	)

	IndexOpstamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loom_index_opstamp",
			Help: "Current opstamp (uncommitted op count) per local index",
		},
		[]string{"index"},
	)

	IndexDeletedDocsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_index_deleted_docs_total",
			Help: "Cumulative documents removed by delete_term per local index",
		},
		[]string{"index"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_raft_log_index",
			Help: "Last index durably appended to the Raft log",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_raft_applied_index",
			Help: "Last Raft log index applied to the catalog",
		},
	)

	// HTTP API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_api_requests_total",
			Help: "Total number of HTTP API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Search and write-path metrics
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_search_duration_seconds",
			Help:    "Time taken to execute a search against an index",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_commit_duration_seconds",
			Help:    "Time taken to execute a writer commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	BulkIngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_bulk_ingest_duration_seconds",
			Help:    "Time taken for one bulk ingest stream to drain",
			Buckets: prometheus.DefBuckets,
		},
	)

	BulkIngestLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_bulk_ingest_lines_total",
			Help: "Total number of NDJSON lines indexed via the bulk ingest pipeline",
		},
	)

	// Raft operation metrics
	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_raft_apply_duration_seconds",
			Help:    "Time taken to apply a committed Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftProposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_raft_propose_duration_seconds",
			Help:    "Time from Propose call to its Done channel firing",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register catalog and raft gauges
	prometheus.MustRegister(IndexesTotal)
	prometheus.MustRegister(IndexOpstamp)
	prometheus.MustRegister(IndexDeletedDocsTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	// Register write/search/apply latency metrics
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(BulkIngestDuration)
	prometheus.MustRegister(BulkIngestLinesTotal)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftProposeDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
