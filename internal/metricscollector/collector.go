// Package metricscollector periodically samples live node state
// (Catalog, Raft Node Driver) into the gauges pkg/metrics registers.
// Kept out of pkg/metrics itself so that low-level packages
// (internal/index, internal/raftnode) can import pkg/metrics to record
// their own counters/histograms without an import cycle back through
// the collector's dependency on internal/catalog and internal/raftnode.
package metricscollector

import (
	"time"

	"go.etcd.io/raft/v3"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/raftnode"
	"github.com/cuemby/loom/pkg/metrics"
)

// Collector periodically samples the Catalog and the Raft Node Driver
// into the registered Prometheus gauges.
type Collector struct {
	catalog *catalog.Catalog
	raft    *raftnode.Driver
	stopCh  chan struct{}
}

// New creates a new metrics collector. raftDriver may be nil before
// cluster join completes; raft gauges are simply skipped then.
func New(cat *catalog.Catalog, raftDriver *raftnode.Driver) *Collector {
	return &Collector{
		catalog: cat,
		raft:    raftDriver,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectCatalogMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectCatalogMetrics() {
	if c.catalog == nil {
		return
	}

	locals := c.catalog.ListLocalIndexes()
	all := c.catalog.ListIndexes()

	metrics.IndexesTotal.WithLabelValues("local").Set(float64(len(locals)))
	metrics.IndexesTotal.WithLabelValues("remote").Set(float64(len(all) - len(locals)))

	for _, h := range locals {
		metrics.IndexOpstamp.WithLabelValues(h.GetName()).Set(float64(h.GetOpstamp()))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.raft == nil {
		return
	}

	st := c.raft.Status()
	if st.RaftState == raft.StateLeader {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	metrics.RaftPeers.Set(float64(c.raft.PeerCount()))
	metrics.RaftAppliedIndex.Set(float64(st.Commit))

	if last, err := c.raft.LastIndex(); err == nil {
		metrics.RaftLogIndex.Set(float64(last))
	}
}
