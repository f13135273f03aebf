package clusterrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/query"
	"github.com/cuemby/loom/internal/schema"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c := catalog.New("", 64)
	return New("node-1", c, nil, schema.Parse, nil, nil)
}

func TestPingReturnsNodeID(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Ping(context.Background(), &clusterpb.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "node-1", resp.NodeID)
}

func TestPlaceIndexThenListIndexes(t *testing.T) {
	s := newTestServer(t)
	schemaBody := []byte(`[{"name":"title","type":"text","options":{"indexed":true,"stored":true}}]`)

	_, err := s.PlaceIndex(context.Background(), &clusterpb.PlaceIndexRequest{Name: "books", Schema: schemaBody})
	require.NoError(t, err)

	listResp, err := s.ListIndexes(context.Background(), &clusterpb.ListIndexesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"books"}, listResp.Names)
}

func TestPlaceDocumentAndSearchIndexRoundTrip(t *testing.T) {
	s := newTestServer(t)
	schemaBody := []byte(`[{"name":"title","type":"text","options":{"indexed":true,"stored":true}}]`)
	_, err := s.PlaceIndex(context.Background(), &clusterpb.PlaceIndexRequest{Name: "books", Schema: schemaBody})
	require.NoError(t, err)

	_, err = s.PlaceDocument(context.Background(), &clusterpb.PlaceDocumentRequest{
		Index:    "books",
		Commit:   true,
		Document: json.RawMessage(`{"title":"dune"}`),
	})
	require.NoError(t, err)

	body, err := json.Marshal(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)

	searchResp, err := s.SearchIndex(context.Background(), &clusterpb.SearchIndexRequest{Index: "books", Body: body})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), searchResp.Hits)
}

func TestSearchIndexUnknownIndexReturnsError(t *testing.T) {
	s := newTestServer(t)
	body, err := json.Marshal(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)

	_, err = s.SearchIndex(context.Background(), &clusterpb.SearchIndexRequest{Index: "missing", Body: body})
	assert.Error(t, err)
}

func TestJoinReturnsCurrentPeerSet(t *testing.T) {
	known := []clusterpb.PeerInfo{{NodeID: "node-2", Address: "10.0.0.2:7070"}}
	var added clusterpb.PeerInfo
	s := New("node-1", catalog.New("", 64), nil, schema.Parse,
		func() []clusterpb.PeerInfo { return known },
		func(p clusterpb.PeerInfo) { added = p })

	resp, err := s.Join(context.Background(), &clusterpb.JoinRequest{NodeID: "node-3", Address: "10.0.0.3:7070"})
	require.NoError(t, err)
	assert.Equal(t, known, resp.Peers)
	assert.Equal(t, "node-3", added.NodeID)
}
