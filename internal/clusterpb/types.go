// Package clusterpb defines Loom's cluster RPC wire types and a
// hand-rolled gRPC service descriptor: request
// and response structs are plain JSON-tagged Go structs, carried over
// gRPC through a custom "loomjson" encoding.Codec instead of generated
// protobuf bindings.
package clusterpb

import "encoding/json"

// PeerInfo identifies one cluster member.
type PeerInfo struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

type PingRequest struct{}

type PingResponse struct {
	NodeID string `json:"node_id"`
}

// PlaceIndexRequest asks a peer to create a local index with the given
// schema.
type PlaceIndexRequest struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type PlaceIndexResponse struct{}

type ListIndexesRequest struct{}

type ListIndexesResponse struct {
	Names []string `json:"names"`
}

// PlaceDocumentRequest carries a raw NDJSON-style document body plus
// add options, mirroring internal/document.AddDocument's wire shape.
type PlaceDocumentRequest struct {
	Index    string          `json:"index"`
	Commit   bool            `json:"commit"`
	Document json.RawMessage `json:"document"`
}

type PlaceDocumentResponse struct{}

type DeleteDocumentRequest struct {
	Index     string            `json:"index"`
	Commit    bool              `json:"commit"`
	TermsMap  map[string]string `json:"terms,omitempty"`
	Fields    []string          `json:"term_fields,omitempty"`
	Values    []string          `json:"term_values,omitempty"`
}

type DeleteDocumentResponse struct {
	DocsAffected uint64 `json:"docs_affected"`
}

// SearchIndexRequest carries the JSON-encoded search request body
// verbatim; the receiving node decodes it with internal/query.
type SearchIndexRequest struct {
	Index string          `json:"index"`
	Body  json.RawMessage `json:"body"`
}

type SearchIndexResponse struct {
	Hits   uint64                     `json:"hits"`
	Docs   []SearchHit                `json:"docs"`
	Facets map[string][]FacetCount    `json:"facets,omitempty"`
}

// SearchHit mirrors internal/query.ScoredDoc over the wire.
type SearchHit struct {
	Score float64                    `json:"score"`
	Doc   map[string][]interface{}   `json:"doc"`
}

// FacetCount mirrors internal/query.FacetValue over the wire.
type FacetCount struct {
	Value string `json:"value"`
	Count uint64 `json:"count"`
}

type GetSummaryRequest struct {
	Index string `json:"index"`
}

type GetSummaryResponse struct {
	Name        string `json:"name"`
	Opstamp     uint64 `json:"opstamp"`
	DeletedDocs uint64 `json:"deleted_docs"`
	SpaceBytes  int64  `json:"space_bytes"`
}

// RaftRequestMessage wraps one raft.Message, marshaled with its own
// protobuf Marshal (from go.etcd.io/raft/v3/raftpb), as a single opaque
// byte field inside the otherwise all-JSON envelope.
type RaftRequestMessage struct {
	Data []byte `json:"data"`
}

type RaftRequestResponse struct{}

type JoinRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

type JoinResponse struct {
	Peers []PeerInfo `json:"peers"`
}
