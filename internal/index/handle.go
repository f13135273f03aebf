// Package index implements the Local Index Handle: the
// owner of one embedded bleve index, its single-writer batch, opstamp,
// and search path.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bleveq "github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/handle"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/queryc"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/log"
	"github.com/cuemby/loom/pkg/metrics"
)

var _ handle.Handle = (*Handle)(nil)

// MergePolicyConfig mirrors the tunables each Index owns. It is stored
// on the Handle as given; bleve has no direct merge-policy knob to set,
// and no field of it, the writer memory budget included, is passed to
// bleve or reported by _summary.
type MergePolicyConfig struct {
	WriterMemoryMB int
}

// Handle owns one index: schema, embedded bleve index, writer batch,
// opstamp, and deleted-doc counter. At most one Handle exists per index
// name per process (enforced by the Catalog).
type Handle struct {
	name    string
	schema  *schema.Schema
	idx     bleve.Index
	dataDir string
	mem     MergePolicyConfig

	writerMu sync.Mutex
	batch    *bleve.Batch

	opstamp  atomic.Uint64
	deleted  atomic.Uint64
	poisoned atomic.Bool
}

// Open creates or opens the on-disk index at dataDir/name using s's
// bleve mapping, and returns a ready Handle. If inMemory is true, the
// index is entirely in-memory (used for tests and the Non-goal-free
// "standalone, ephemeral" mode).
func Open(baseDir, name string, s *schema.Schema, mem MergePolicyConfig, inMemory bool) (*Handle, error) {
	h := &Handle{name: name, schema: s, mem: mem}

	if inMemory {
		idx, err := bleve.NewMemOnly(s.BuildMapping())
		if err != nil {
			return nil, errs.IOError(fmt.Errorf("opening in-memory index %q: %w", name, err))
		}
		h.idx = idx
		h.batch = idx.NewBatch()
		return h, nil
	}

	dir := filepath.Join(baseDir, name)
	if _, statErr := os.Stat(filepath.Join(dir, "index_meta.json")); statErr == nil {
		idx, err := bleve.Open(dir)
		if err != nil {
			return nil, errs.IOError(fmt.Errorf("opening index %q: %w", name, err))
		}
		h.idx = idx
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.IOError(fmt.Errorf("creating index directory %q: %w", dir, err))
		}
		idx, err := bleve.New(dir, s.BuildMapping())
		if err != nil {
			return nil, errs.IOError(fmt.Errorf("creating index %q: %w", name, err))
		}
		h.idx = idx
	}

	h.dataDir = dir
	h.batch = h.idx.NewBatch()
	return h, nil
}

func (h *Handle) GetName() string          { return h.name }
func (h *Handle) GetSchema() *schema.Schema { return h.schema }
func (h *Handle) GetOpstamp() uint64       { return h.opstamp.Load() }
func (h *Handle) SetOpstamp(v uint64)      { h.opstamp.Store(v) }
func (h *Handle) IsPoisoned() bool         { return h.poisoned.Load() }

// GetIndex exposes the underlying bleve index for callers (e.g.
// GetSummary) that need direct read access; remote handles have no
// equivalent.
func (h *Handle) GetIndex() (bleve.Index, bool) { return h.idx, true }

// GetSpace reports on-disk usage, the one place Loom walks the
// filesystem directly instead of going through bleve, because bleve
// has no segment-size introspection API.
func (h *Handle) GetSpace() (int64, error) {
	if h.dataDir == "" {
		return 0, nil // in-memory index
	}
	var total int64
	err := filepath.Walk(h.dataDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errs.IOError(err)
	}
	return total, nil
}

// withWriter recovers a panic inside fn, poisoning the handle (the
// translation of "writer lock poisoned by panic" onto a runtime without
// poisoning mutexes).
func (h *Handle) withWriter(fn func() error) (err error) {
	if h.poisoned.Load() {
		return errs.Poisoned()
	}
	h.writerMu.Lock()
	defer h.writerMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			h.poisoned.Store(true)
			err = errs.Poisoned()
			log.Logger.Error().
				Str("index", h.name).
				Interface("panic", r).
				Msg("writer panicked, index poisoned")
		}
	}()
	return fn()
}

// Commit acquires the writer lock, executes the pending batch against
// bleve, and on success resets the opstamp to 0: after a successful
// commit, GetOpstamp always reports 0.
func (h *Handle) Commit() (uint64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommitDuration, h.name)

	prev := h.opstamp.Load()
	err := h.withWriter(func() error {
		if h.batch.Size() == 0 {
			return nil
		}
		if err := h.idx.Batch(h.batch); err != nil {
			return errs.IOError(err)
		}
		h.batch = h.idx.NewBatch()
		return nil
	})
	if err != nil {
		return prev, err
	}
	h.opstamp.Store(0)
	return prev, nil
}

// DiscardBatch drops every staged-but-uncommitted write by replacing
// the pending batch with a fresh one, without touching bleve's
// committed state. Equivalent to a rollback of everything staged since
// the last successful Commit.
func (h *Handle) DiscardBatch() {
	h.writerMu.Lock()
	h.batch = h.idx.NewBatch()
	h.writerMu.Unlock()
	h.opstamp.Store(0)
}

// AddDocument parses doc against the schema and stages it in the
// pending batch; options.commit=true executes immediately instead.
func (h *Handle) AddDocument(doc document.AddDocument) error {
	_, flat, err := document.Parse(h.schema, doc.Document)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	err = h.withWriter(func() error {
		return h.batch.Index(id, flat)
	})
	if err != nil {
		return err
	}

	if doc.Options.Commit {
		_, err := h.Commit()
		return err
	}
	h.opstamp.Add(1)
	return nil
}

// DeleteTerm deletes every document matching any of doc's (field,
// value) term pairs, returning the number of documents the reader lost
// (before/after reader doc-count delta).
func (h *Handle) DeleteTerm(doc document.DeleteDoc) (document.DocsAffected, error) {
	var before uint64
	err := h.withWriter(func() error {
		// Staged adds are executed first so that the before/after delta
		// counts only the deletes.
		if h.batch.Size() > 0 {
			if err := h.idx.Batch(h.batch); err != nil {
				return errs.IOError(err)
			}
			h.batch = h.idx.NewBatch()
		}
		n, cerr := h.idx.DocCount()
		if cerr != nil {
			return errs.IOError(cerr)
		}
		before = n
		for _, pair := range doc.Pairs() {
			if _, ferr := h.schema.MustBeIndexed(pair.Field); ferr != nil {
				return ferr
			}
			tq := bleveq.NewTermQuery(pair.Value)
			tq.SetField(pair.Field)
			req := bleve.NewSearchRequest(tq)
			req.Size = int(before) + 1
			res, serr := h.idx.Search(req)
			if serr != nil {
				return errs.IOError(serr)
			}
			for _, hit := range res.Hits {
				if derr := h.batch.Delete(hit.ID); derr != nil {
					return errs.IOError(derr)
				}
			}
		}
		if h.batch.Size() == 0 {
			return nil
		}
		if err := h.idx.Batch(h.batch); err != nil {
			return errs.IOError(err)
		}
		h.batch = h.idx.NewBatch()
		return nil
	})
	if err != nil {
		return document.DocsAffected{}, err
	}

	if doc.Options.Commit {
		h.opstamp.Store(0)
	} else {
		h.opstamp.Add(1)
	}

	after, err := h.idx.DocCount()
	if err != nil {
		return document.DocsAffected{}, errs.IOError(err)
	}
	affected := before - after
	h.deleted.Add(affected)
	metrics.IndexDeletedDocsTotal.WithLabelValues(h.name).Add(float64(affected))
	return document.DocsAffected{Index: h.name, DocsAffected: affected}, nil
}

// Search executes a compiled query against the current reader
// sort_by is applied only when the named field
// qualifies (fast + stored); otherwise it silently falls back to score
// order.
func (h *Handle) Search(s query.Search) (query.SearchResults, error) {
	// Reads continue against the last committed snapshot even when the
	// writer is poisoned.
	compiled, err := queryc.Compile(h.schema, s.Query)
	if err != nil {
		return query.SearchResults{}, err
	}

	req := bleve.NewSearchRequest(compiled)
	req.Size = s.EffectiveLimit()
	req.Fields = []string{"*"}

	if s.SortBy != "" {
		if _, ok := h.schema.SortableField(s.SortBy); ok {
			req.SortBy([]string{s.SortBy})
		}
	}

	if s.Facets != nil && s.Facets.Field != "" {
		req.AddFacet(s.Facets.Field, bleve.NewFacetRequest(s.Facets.Field, maxFacetTerms))
	}

	res, err := h.idx.Search(req)
	if err != nil {
		return query.SearchResults{}, errs.IOError(err)
	}

	return mapResults(res, s.Facets), nil
}

const maxFacetTerms = 1000

// mapResults translates a bleve SearchResult into Loom's SearchResults
// envelope, rolling up facet terms by the requested hierarchical
// prefixes ("/"-delimited facet paths).
func mapResults(res *bleve.SearchResult, fq *query.FacetQuery) query.SearchResults {
	out := query.SearchResults{Hits: uint64(res.Total)}
	out.Docs = make([]query.ScoredDoc, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc := make(map[string][]interface{}, len(hit.Fields))
		for field, value := range hit.Fields {
			doc[field] = append(doc[field], value)
		}
		out.Docs = append(out.Docs, query.ScoredDoc{Score: hit.Score, Doc: doc})
	}

	if fq == nil || res.Facets == nil {
		return out
	}
	facetResult, ok := res.Facets[fq.Field]
	if !ok || facetResult == nil {
		return out
	}

	if len(fq.Prefixes) == 0 {
		return out
	}

	out.Facets = make(map[string][]query.FacetValue)
	var terms []*search.TermFacet
	if facetResult.Terms != nil {
		terms = *facetResult.Terms
	}
	prefix := fq.Prefixes[0]
	values := []query.FacetValue{}
	for _, term := range terms {
		if hasFacetPrefix(term.Term, prefix) {
			values = append(values, query.FacetValue{Value: term.Term, Count: uint64(term.Count)})
		}
	}
	out.Facets[prefix] = values
	return out
}

// hasFacetPrefix reports whether term (a "/"-delimited hierarchical
// facet path, e.g. "/electronics/laptops") falls under prefix.
func hasFacetPrefix(term, prefix string) bool {
	if prefix == "/" || prefix == "" {
		return true
	}
	if term == prefix {
		return true
	}
	return len(term) > len(prefix) && term[:len(prefix)] == prefix && term[len(prefix)] == '/'
}
