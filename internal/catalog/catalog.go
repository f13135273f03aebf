// Package catalog implements the Index Catalog: the
// per-node registry of index handles, base-path discovery, and the
// write-placement coin flip between a local handle and its remote
// shadow.
package catalog

import (
	"crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/handle"
	"github.com/cuemby/loom/internal/index"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/log"
)

// BulkIngestLock is process-wide: the Bulk Ingest Pipeline sets
// it for the duration of a streaming write, and the Commit Watcher
// checks it before committing so a bulk load's uncommitted
// batch is never force-flushed mid-stream.
var BulkIngestLock atomic.Bool

// Catalog is the per-node registry of local and remote index handles.
type Catalog struct {
	basePath string
	mu       sync.RWMutex
	handles  map[string]*index.Handle
	remotes  map[string]handle.Handle

	writerMemMB int
	mergePolicy index.MergePolicyConfig

	coinSeed uint64
}

// New creates a Catalog rooted at basePath. basePath may be empty for
// an all-in-memory catalog (tests, ephemeral mode).
func New(basePath string, writerMemMB int) *Catalog {
	var seed [8]byte
	_, _ = rand.Read(seed[:])
	return &Catalog{
		basePath:    basePath,
		handles:     make(map[string]*index.Handle),
		remotes:     make(map[string]handle.Handle),
		writerMemMB: writerMemMB,
		mergePolicy: index.MergePolicyConfig{WriterMemoryMB: writerMemMB},
		coinSeed:    binary.BigEndian.Uint64(seed[:]),
	}
}

// nextCoin draws one fresh bool from a source seeded from the
// catalog's crypto-random seed mixed with a per-call counter, never
// from one long-lived shared *rand.Rand, so no two requests share RNG
// state.
var coinCounter atomic.Uint64

func (c *Catalog) nextCoin() bool {
	n := coinCounter.Add(1)
	src := rand.NewPCG(c.coinSeed, n)
	r := rand.New(src)
	return r.IntN(2) == 0
}

// AddIndex creates (or reopens) a local index named name with schema s
// and registers it in the catalog.
func (c *Catalog) AddIndex(name string, s *schema.Schema, inMemory bool) (*index.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.handles[name]; exists {
		return nil, errs.IOErrorf("index %q already exists", name)
	}

	h, err := index.Open(c.basePath, name, s, c.mergePolicy, inMemory)
	if err != nil {
		return nil, err
	}
	c.handles[name] = h
	return h, nil
}

// AddRemoteIndex registers a remote shadow handle, used when this node
// learns of an index living on peers rather than locally.
func (c *Catalog) AddRemoteIndex(name string, h handle.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes[name] = h
}

// Exists reports whether name is registered locally.
func (c *Catalog) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.handles[name]
	return ok
}

// RemoteExists reports whether name is registered as a remote shadow.
func (c *Catalog) RemoteExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.remotes[name]
	return ok
}

// GetIndex looks up name, preferring a local handle; the bool return
// distinguishes "found remote" from "found local" for callers (e.g.
// GetSummary) that only make sense against a local handle.
func (c *Catalog) GetIndex(name string) (handle.Handle, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.handles[name]; ok {
		return h, true, nil
	}
	if h, ok := c.remotes[name]; ok {
		return h, false, nil
	}
	return nil, false, errs.UnknownIndex(name)
}

// ListIndexes returns every known index name, local and remote,
// deduplicated and sorted.
func (c *Catalog) ListIndexes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := make(map[string]struct{}, len(c.handles)+len(c.remotes))
	for n := range c.handles {
		set[n] = struct{}{}
	}
	for n := range c.remotes {
		set[n] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListLocalIndexes returns every locally-held index handle, sorted by
// name — the view the Commit Watcher iterates.
func (c *Catalog) ListLocalIndexes() []*index.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*index.Handle, 0, len(c.handles))
	for _, h := range c.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// RefreshCatalog clears the in-memory registry and re-derives it from
// basePath's immediate subdirectories, skipping the `.node_id` file
// Schemas are supplied by schemaFor since a bare
// directory walk carries no schema information on its own.
func (c *Catalog) RefreshCatalog(schemaFor func(name string) (*schema.Schema, error)) error {
	if c.basePath == "" {
		return nil // all-in-memory catalog has nothing to discover on disk
	}

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return errs.IOError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[string]*index.Handle)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == ".node_id" {
			continue
		}
		s, serr := schemaFor(name)
		if serr != nil {
			log.Logger.Error().Str("index", name).Err(serr).Msg("refresh: no schema for index, skipping")
			continue
		}
		h, oerr := index.Open(c.basePath, name, s, c.mergePolicy, false)
		if oerr != nil {
			log.Logger.Error().Str("index", name).Err(oerr).Msg("refresh: failed to reopen index")
			continue
		}
		c.handles[name] = h
	}
	return nil
}

// SearchLocalIndex searches name against its local handle only,
// returning UnknownIndex if name has no local handle.
func (c *Catalog) SearchLocalIndex(name string, s query.Search) (query.SearchResults, error) {
	c.mu.RLock()
	h, ok := c.handles[name]
	c.mu.RUnlock()
	if !ok {
		return query.SearchResults{}, errs.UnknownIndex(name)
	}
	return h.Search(s)
}

// SearchRemoteIndex searches name against its remote shadow.
func (c *Catalog) SearchRemoteIndex(name string, s query.Search) (query.SearchResults, error) {
	c.mu.RLock()
	h, ok := c.remotes[name]
	c.mu.RUnlock()
	if !ok {
		return query.SearchResults{}, errs.UnknownIndex(name)
	}
	return h.Search(s)
}

// AddRemoteDocument adds doc to name's remote shadow handle.
func (c *Catalog) AddRemoteDocument(name string, doc document.AddDocument) error {
	c.mu.RLock()
	h, ok := c.remotes[name]
	c.mu.RUnlock()
	if !ok {
		return errs.UnknownIndex(name)
	}
	return h.AddDocument(doc)
}

// UpdateRemoteIndexes replaces the full remote-shadow set, as driven
// by the Placement Watcher's watch channel.
func (c *Catalog) UpdateRemoteIndexes(remotes map[string]handle.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes = remotes
}

// AddDocument routes a write: for a locally-held index it flips the
// placement coin (local write vs. forwarding into the remote shadow,
// cheap load spreading when Raft is disabled); for a
// remote-only index it always forwards.
func (c *Catalog) AddDocument(name string, doc document.AddDocument) error {
	c.mu.RLock()
	local, hasLocal := c.handles[name]
	remote, hasRemote := c.remotes[name]
	c.mu.RUnlock()

	switch {
	case hasLocal && hasRemote:
		if c.nextCoin() {
			return local.AddDocument(doc)
		}
		return remote.AddDocument(doc)
	case hasLocal:
		return local.AddDocument(doc)
	case hasRemote:
		return remote.AddDocument(doc)
	default:
		return errs.UnknownIndex(name)
	}
}

// DeleteTerm mirrors AddDocument's resolution but always applies the
// delete wherever the index actually lives; there is no placement
// decision to make for a delete.
func (c *Catalog) DeleteTerm(name string, doc document.DeleteDoc) (document.DocsAffected, error) {
	c.mu.RLock()
	local, hasLocal := c.handles[name]
	remote, hasRemote := c.remotes[name]
	c.mu.RUnlock()

	switch {
	case hasLocal:
		return local.DeleteTerm(doc)
	case hasRemote:
		return remote.DeleteTerm(doc)
	default:
		return document.DocsAffected{}, errs.UnknownIndex(name)
	}
}

// BasePath exposes the catalog's root directory (used by callers that
// compute on-disk paths, e.g. the `.node_id` file).
func (c *Catalog) BasePath() string { return c.basePath }

func FullPath(basePath, name string) string { return filepath.Join(basePath, name) }
