// Package remote implements the Remote Index Handle: a
// shadow handle backed by peer gRPC clients instead of a local bleve
// index, satisfying the same handle.Handle capability interface as
// internal/index.Handle (duck-typed handle polymorphism).
package remote

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/clusterrpc"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/handle"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

var _ handle.Handle = (*Handle)(nil)

// Handle is the remote shadow for one index name: no local writer or
// reader, just a fan-out over peer ClusterClients.
type Handle struct {
	name   string
	schema *schema.Schema

	mu    sync.RWMutex
	peers []clusterpb.ClusterClient

	opstamp uint64
}

// New creates a remote Handle for name backed by peers. schema may be
// nil if unknown yet; it is only used by callers that need field
// validation against a remote index, which is not required here.
func New(name string, s *schema.Schema, peers []clusterpb.ClusterClient) *Handle {
	return &Handle{name: name, schema: s, peers: peers}
}

// SetPeers replaces the peer set, called when the Placement Watcher
// reports a membership change.
func (h *Handle) SetPeers(peers []clusterpb.ClusterClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers = peers
}

func (h *Handle) currentPeers() []clusterpb.ClusterClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]clusterpb.ClusterClient, len(h.peers))
	copy(out, h.peers)
	return out
}

func (h *Handle) GetName() string           { return h.name }
func (h *Handle) GetSchema() *schema.Schema  { return h.schema }
func (h *Handle) GetOpstamp() uint64         { return h.opstamp }
func (h *Handle) SetOpstamp(v uint64)        { h.opstamp = v }

// GetIndex returns (nil, false): a remote handle carries no local
// bleve index.
func (h *Handle) GetIndex() (bleve.Index, bool) { return nil, false }

// Commit is a no-op: commits are a local-writer concept; a remote
// shadow has nothing of its own to flush.
func (h *Handle) Commit() (uint64, error) { return h.opstamp, nil }

// DiscardBatch is a no-op: a remote shadow stages nothing locally.
func (h *Handle) DiscardBatch() {}

// AddDocument picks one peer at random and forwards the write
// (random-pick write dispatch).
func (h *Handle) AddDocument(doc document.AddDocument) error {
	peers := h.currentPeers()
	if len(peers) == 0 {
		return errs.IOErrorf("remote index %q has no reachable peers", h.name)
	}
	peer := peers[rand.IntN(len(peers))]

	_, err := peer.PlaceDocument(context.Background(), &clusterpb.PlaceDocumentRequest{
		Index:    h.name,
		Commit:   doc.Options.Commit,
		Document: doc.Document,
	})
	if err != nil {
		return errs.RPC(err)
	}
	return nil
}

// DeleteTerm fans out to every peer and sums the affected-doc counts.
func (h *Handle) DeleteTerm(doc document.DeleteDoc) (document.DocsAffected, error) {
	peers := h.currentPeers()
	if len(peers) == 0 {
		return document.DocsAffected{}, errs.IOErrorf("remote index %q has no reachable peers", h.name)
	}

	req := &clusterpb.DeleteDocumentRequest{Index: h.name, Commit: doc.Options.Commit, TermsMap: doc.TermsMap}
	for _, p := range doc.TermPairs {
		req.Fields = append(req.Fields, p.Field)
		req.Values = append(req.Values, p.Value)
	}

	g, ctx := errgroup.WithContext(context.Background())
	results := make([]uint64, len(peers))
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			resp, err := p.DeleteDocument(ctx, req)
			if err != nil {
				return errs.RPC(err)
			}
			results[i] = resp.DocsAffected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return document.DocsAffected{}, err
	}

	var total uint64
	for _, n := range results {
		total += n
	}
	return document.DocsAffected{Index: h.name, DocsAffected: total}, nil
}

// Search fans out to every peer concurrently and folds the results
// with query.FoldResults.
func (h *Handle) Search(s query.Search) (query.SearchResults, error) {
	peers := h.currentPeers()
	if len(peers) == 0 {
		return query.SearchResults{}, errs.IOErrorf("remote index %q has no reachable peers", h.name)
	}

	body, err := json.Marshal(s)
	if err != nil {
		return query.SearchResults{}, errs.IOError(err)
	}

	g, ctx := errgroup.WithContext(context.Background())
	results := make([]query.SearchResults, len(peers))
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			resp, err := p.SearchIndex(ctx, &clusterpb.SearchIndexRequest{Index: h.name, Body: body})
			if err != nil {
				return errs.RPC(err)
			}
			results[i] = clusterrpc.FromWireResults(resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return query.SearchResults{}, err
	}

	return query.FoldResults(results, s.EffectiveLimit()), nil
}
