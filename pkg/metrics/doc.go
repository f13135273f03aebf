/*
Package metrics provides Prometheus metrics collection and exposition for Loom.

The metrics package defines and registers all Loom metrics using the Prometheus
client library, providing observability into catalog state, Raft consensus
health, and request/write latency across a node. Metrics are exposed via an
HTTP endpoint for scraping by Prometheus servers.

# Architecture

Loom's metrics system follows Prometheus best practices with comprehensive
instrumentation across its components:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (index count)        │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Catalog: Indexes, opstamps, deletions      │          │
	│  │  Raft: Leader status, log index, peers      │          │
	│  │  HTTP: Request count, duration              │          │
	│  │  Write path: Bulk ingest, commit, search    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: index count, opstamp, Raft leader status
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: requests total, deleted docs total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: HTTP request duration, commit duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

Collector:
  - Polls *catalog.Catalog and *raftnode.Driver on a 15s tick
  - Keeps catalog/raft gauges current without call-site instrumentation

# Metrics Catalog

Catalog Metrics:

loom_indexes_total{placement}:
  - Type: Gauge
  - Description: Total indexes by placement (local, remote)
  - Labels: placement
  - Example: loom_indexes_total{placement="local"} 3

loom_index_opstamp{index}:
  - Type: Gauge
  - Description: Current opstamp (uncommitted op count) per local index
  - Labels: index
  - Example: loom_index_opstamp{index="books"} 42

loom_index_deleted_docs_total{index}:
  - Type: Counter
  - Description: Cumulative documents removed by delete_term per local index
  - Labels: index

Raft Metrics:

loom_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is Raft leader (1=leader, 0=follower)
  - Example: loom_raft_is_leader 1

loom_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers tracked by this node's conf state
  - Example: loom_raft_peers_total 3

loom_raft_log_index:
  - Type: Gauge
  - Description: Last index durably appended to the Raft log
  - Example: loom_raft_log_index 1543

loom_raft_applied_index:
  - Type: Gauge
  - Description: Last Raft log index applied to the catalog
  - Example: loom_raft_applied_index 1543

HTTP Metrics:

loom_api_requests_total{route, status}:
  - Type: Counter
  - Description: Total HTTP API requests by route and status
  - Labels: route, status

loom_api_request_duration_seconds{route}:
  - Type: Histogram
  - Description: HTTP API request duration in seconds
  - Labels: route
  - Buckets: 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10

Write-path Metrics:

loom_search_duration_seconds{index}:
  - Type: Histogram
  - Description: Time to execute a search against an index

loom_commit_duration_seconds{index}:
  - Type: Histogram
  - Description: Time to execute a writer commit

loom_bulk_ingest_duration_seconds:
  - Type: Histogram
  - Description: Time for one bulk ingest stream to drain

loom_bulk_ingest_lines_total:
  - Type: Counter
  - Description: Total NDJSON lines indexed via bulk ingest

Raft Operation Metrics:

loom_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time to apply a committed Raft log entry

loom_raft_propose_duration_seconds:
  - Type: Histogram
  - Description: Time from Propose call to its Done channel firing

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/loom/pkg/metrics"

	metrics.IndexesTotal.WithLabelValues("local").Set(5)
	metrics.RaftLeader.Set(1)

Updating Counter Metrics:

	metrics.IndexDeletedDocsTotal.WithLabelValues("books").Add(3)
	metrics.APIRequestsTotal.WithLabelValues("PUT /{index}", "201").Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.BulkIngestDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.SearchDuration, "books")

Running the Collector:

Periodic gauge sampling lives in internal/metricscollector, not in this
package, since it depends on internal/catalog and internal/raftnode and
this package must stay importable from those same packages' leaves
(internal/index, internal/raftnode) without an import cycle.

	coll := metricscollector.New(cat, driver)
	coll.Start()
	defer coll.Stop()

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

# Integration Points

This package integrates with:

  - internal/metricscollector: Index count, opstamp, and Raft gauges
  - internal/raftnode: Propose/apply duration histograms
  - internal/index: Commit duration and deleted-doc counters
  - internal/httpapi: Request count and duration instrumentation
  - internal/bulk: Ingest duration and line count
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (document IDs, timestamps)
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Supports both simple and vector histograms

# Monitoring

Prometheus Queries (PromQL):

Catalog Health:
  - Total indexes: sum(loom_indexes_total)
  - Opstamp drift: loom_index_opstamp

Raft Health:
  - Has leader: max(loom_raft_is_leader) > 0
  - Leader changes: changes(loom_raft_is_leader[10m])
  - Log lag: loom_raft_log_index - loom_raft_applied_index
  - Peer count: loom_raft_peers_total

HTTP Performance:
  - Request rate: rate(loom_api_requests_total[1m])
  - Error rate: rate(loom_api_requests_total{status=~"5.."}[1m])
  - p95 latency: histogram_quantile(0.95, loom_api_request_duration_seconds_bucket)

# Alerting Rules

No Raft Leader:
  - Alert: max(loom_raft_is_leader) == 0
  - Description: cluster has no Raft leader
  - Action: check peer connectivity, quorum status

Frequent Leader Changes:
  - Alert: changes(loom_raft_is_leader[10m]) > 3
  - Description: leader changed more than 3 times in 10 minutes
  - Action: check network latency between nodes

High API Latency:
  - Alert: histogram_quantile(0.95, loom_api_request_duration_seconds_bucket) > 1
  - Description: p95 API latency > 1 second
  - Action: check Raft commit latency, index size

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
