// Package commitwatch implements the Commit Watcher: a
// ticker-driven loop that auto-commits dirty local indexes, deferring
// to the Bulk Ingest Pipeline's exclusive lock.
package commitwatch

import (
	"time"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/pkg/log"
)

// Watcher commits every local index with a non-zero opstamp once per
// tick, unless a bulk ingest is currently in flight.
type Watcher struct {
	catalog  *catalog.Catalog
	interval time.Duration
	stopCh   chan struct{}
}

// New builds a Watcher. autoCommitSeconds is the auto-commit interval
// expressed as a float64 seconds value.
func New(c *catalog.Catalog, autoCommitSeconds float64) *Watcher {
	return &Watcher{
		catalog:  c,
		interval: time.Duration(autoCommitSeconds * float64(time.Second)),
		stopCh:   make(chan struct{}),
	}
}

// Run blocks, ticking until Stop is called. Intended to be launched in
// its own goroutine by the caller.
func (w *Watcher) Run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.stopCh:
			return
		}
	}
}

// Stop ends the loop; safe to call once.
func (w *Watcher) Stop() { close(w.stopCh) }

func (w *Watcher) tick() {
	for _, h := range w.catalog.ListLocalIndexes() {
		if h.GetOpstamp() == 0 {
			continue
		}
		if catalog.BulkIngestLock.Load() {
			continue
		}
		if _, err := h.Commit(); err != nil {
			log.Logger.Error().Str("index", h.GetName()).Err(err).Msg("auto-commit failed")
			continue
		}
		log.Logger.Debug().Str("index", h.GetName()).Msg("auto-committed")
	}
}
