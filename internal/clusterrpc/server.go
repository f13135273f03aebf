// Package clusterrpc implements the Cluster RPC Service: the gRPC
// Server satisfying the hand-written internal/clusterpb.ClusterServer
// interface, with a thin method body per RPC that delegates into the
// node's own state.
package clusterrpc

import (
	"context"
	"encoding/json"

	"go.etcd.io/raft/v3/raftpb"
	"google.golang.org/grpc"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/log"
)

// RaftInbound receives decoded raft messages destined for this node's
// Raft Node Driver (internal/raftnode.Driver.recvCh).
type RaftInbound interface {
	Step(ctx context.Context, msg raftpb.Message) error
}

// SchemaParser decodes a wire schema body, the same function
// internal/schema.Parse provides; held as a func value so clusterrpc
// need not import internal/httpapi's request-parsing conventions.
type SchemaParser func(raw []byte) (*schema.Schema, error)

// Server implements clusterpb.ClusterServer against a node's Catalog
// and Raft driver.
type Server struct {
	nodeID   string
	catalog  *catalog.Catalog
	raft     RaftInbound
	parse    SchemaParser
	peers    func() []clusterpb.PeerInfo
	addPeer  func(clusterpb.PeerInfo)
}

var _ clusterpb.ClusterServer = (*Server)(nil)

// New builds a Server. peers/addPeer are supplied by the node's
// membership tracking (placement watcher + static config); both may be
// nil stubs in single-node/test configurations.
func New(nodeID string, c *catalog.Catalog, raft RaftInbound, parse SchemaParser,
	peers func() []clusterpb.PeerInfo, addPeer func(clusterpb.PeerInfo)) *Server {
	return &Server{nodeID: nodeID, catalog: c, raft: raft, parse: parse, peers: peers, addPeer: addPeer}
}

// Register attaches the service to an existing *grpc.Server using the
// hand-rolled descriptor instead of protoc-gen-go-grpc registration.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&clusterpb.ServiceDesc, s)
}

func (s *Server) Ping(ctx context.Context, _ *clusterpb.PingRequest) (*clusterpb.PingResponse, error) {
	return &clusterpb.PingResponse{NodeID: s.nodeID}, nil
}

func (s *Server) PlaceIndex(ctx context.Context, req *clusterpb.PlaceIndexRequest) (*clusterpb.PlaceIndexResponse, error) {
	sc, err := s.parse(req.Schema)
	if err != nil {
		return nil, errs.GRPCStatus(err)
	}
	if _, err := s.catalog.AddIndex(req.Name, sc, false); err != nil {
		return nil, errs.GRPCStatus(err)
	}
	return &clusterpb.PlaceIndexResponse{}, nil
}

func (s *Server) ListIndexes(ctx context.Context, _ *clusterpb.ListIndexesRequest) (*clusterpb.ListIndexesResponse, error) {
	return &clusterpb.ListIndexesResponse{Names: s.catalog.ListIndexes()}, nil
}

func (s *Server) PlaceDocument(ctx context.Context, req *clusterpb.PlaceDocumentRequest) (*clusterpb.PlaceDocumentResponse, error) {
	err := s.catalog.AddDocument(req.Index, document.AddDocument{
		Options:  document.AddOptions{Commit: req.Commit},
		Document: req.Document,
	})
	if err != nil {
		return nil, errs.GRPCStatus(err)
	}
	return &clusterpb.PlaceDocumentResponse{}, nil
}

func (s *Server) DeleteDocument(ctx context.Context, req *clusterpb.DeleteDocumentRequest) (*clusterpb.DeleteDocumentResponse, error) {
	del := document.DeleteDoc{
		Options:  document.AddOptions{Commit: req.Commit},
		TermsMap: req.TermsMap,
	}
	for i := range req.Fields {
		if i < len(req.Values) {
			del.TermPairs = append(del.TermPairs, document.DeleteTermPair{Field: req.Fields[i], Value: req.Values[i]})
		}
	}
	affected, err := s.catalog.DeleteTerm(req.Index, del)
	if err != nil {
		return nil, errs.GRPCStatus(err)
	}
	return &clusterpb.DeleteDocumentResponse{DocsAffected: affected.DocsAffected}, nil
}

func (s *Server) SearchIndex(ctx context.Context, req *clusterpb.SearchIndexRequest) (*clusterpb.SearchIndexResponse, error) {
	var search query.Search
	if err := json.Unmarshal(req.Body, &search); err != nil {
		return nil, errs.GRPCStatus(errs.IOError(err))
	}
	res, err := s.catalog.SearchLocalIndex(req.Index, search)
	if err != nil {
		return nil, errs.GRPCStatus(err)
	}
	return toWireResults(res), nil
}

func toWireResults(res query.SearchResults) *clusterpb.SearchIndexResponse {
	out := &clusterpb.SearchIndexResponse{Hits: res.Hits}
	out.Docs = make([]clusterpb.SearchHit, 0, len(res.Docs))
	for _, d := range res.Docs {
		out.Docs = append(out.Docs, clusterpb.SearchHit{Score: d.Score, Doc: d.Doc})
	}
	if len(res.Facets) > 0 {
		out.Facets = make(map[string][]clusterpb.FacetCount, len(res.Facets))
		for k, vs := range res.Facets {
			wire := make([]clusterpb.FacetCount, 0, len(vs))
			for _, v := range vs {
				wire = append(wire, clusterpb.FacetCount{Value: v.Value, Count: v.Count})
			}
			out.Facets[k] = wire
		}
	}
	return out
}

// FromWireResults converts a clusterpb.SearchIndexResponse back into
// internal/query.SearchResults, used by internal/remote's fan-out.
func FromWireResults(resp *clusterpb.SearchIndexResponse) query.SearchResults {
	out := query.SearchResults{Hits: resp.Hits}
	out.Docs = make([]query.ScoredDoc, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		out.Docs = append(out.Docs, query.ScoredDoc{Score: d.Score, Doc: d.Doc})
	}
	if len(resp.Facets) > 0 {
		out.Facets = make(map[string][]query.FacetValue, len(resp.Facets))
		for k, vs := range resp.Facets {
			conv := make([]query.FacetValue, 0, len(vs))
			for _, v := range vs {
				conv = append(conv, query.FacetValue{Value: v.Value, Count: v.Count})
			}
			out.Facets[k] = conv
		}
	}
	return out
}

func (s *Server) GetSummary(ctx context.Context, req *clusterpb.GetSummaryRequest) (*clusterpb.GetSummaryResponse, error) {
	h, local, err := s.catalog.GetIndex(req.Index)
	if err != nil {
		return nil, errs.GRPCStatus(err)
	}
	if !local {
		return nil, errs.GRPCStatus(errs.QueryErrorf("index %q is not local to this node", req.Index))
	}
	idx, ok := h.GetIndex()
	var spaceBytes int64
	if ok && idx != nil {
		// Space accounting is a local-handle-only concern; GetSpace
		// lives on *index.Handle, not the narrower handle.Handle
		// interface, so it is recovered via a type assertion here.
		if spacer, ok := h.(interface{ GetSpace() (int64, error) }); ok {
			if sz, err := spacer.GetSpace(); err == nil {
				spaceBytes = sz
			}
		}
	}
	return &clusterpb.GetSummaryResponse{
		Name:        h.GetName(),
		Opstamp:     h.GetOpstamp(),
		DeletedDocs: 0,
		SpaceBytes:  spaceBytes,
	}, nil
}

func (s *Server) RaftRequest(ctx context.Context, req *clusterpb.RaftRequestMessage) (*clusterpb.RaftRequestResponse, error) {
	if s.raft == nil {
		return nil, errs.GRPCStatus(errs.IOErrorf("raft is not enabled on this node"))
	}
	var msg raftpb.Message
	if err := msg.Unmarshal(req.Data); err != nil {
		return nil, errs.GRPCStatus(errs.IOError(err))
	}
	if err := s.raft.Step(ctx, msg); err != nil {
		log.Logger.Error().Err(err).Msg("raft request: step failed")
		return nil, errs.GRPCStatus(err)
	}
	return &clusterpb.RaftRequestResponse{}, nil
}

func (s *Server) Join(ctx context.Context, req *clusterpb.JoinRequest) (*clusterpb.JoinResponse, error) {
	if s.addPeer != nil {
		s.addPeer(clusterpb.PeerInfo{NodeID: req.NodeID, Address: req.Address})
	}
	var peers []clusterpb.PeerInfo
	if s.peers != nil {
		peers = s.peers()
	}
	return &clusterpb.JoinResponse{Peers: peers}, nil
}
