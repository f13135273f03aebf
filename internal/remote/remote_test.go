package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/query"
)

// fakeClient is a minimal clusterpb.ClusterClient stub for exercising
// Handle's fan-out logic without a real gRPC connection.
type fakeClient struct {
	hits          uint64
	docsAffected  uint64
	placeErr      error
	searchErr     error
	placeCalls    int
}

func (f *fakeClient) Ping(context.Context, *clusterpb.PingRequest, ...grpc.CallOption) (*clusterpb.PingResponse, error) {
	return &clusterpb.PingResponse{}, nil
}
func (f *fakeClient) PlaceIndex(context.Context, *clusterpb.PlaceIndexRequest, ...grpc.CallOption) (*clusterpb.PlaceIndexResponse, error) {
	return &clusterpb.PlaceIndexResponse{}, nil
}
func (f *fakeClient) ListIndexes(context.Context, *clusterpb.ListIndexesRequest, ...grpc.CallOption) (*clusterpb.ListIndexesResponse, error) {
	return &clusterpb.ListIndexesResponse{}, nil
}
func (f *fakeClient) PlaceDocument(context.Context, *clusterpb.PlaceDocumentRequest, ...grpc.CallOption) (*clusterpb.PlaceDocumentResponse, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &clusterpb.PlaceDocumentResponse{}, nil
}
func (f *fakeClient) DeleteDocument(context.Context, *clusterpb.DeleteDocumentRequest, ...grpc.CallOption) (*clusterpb.DeleteDocumentResponse, error) {
	return &clusterpb.DeleteDocumentResponse{DocsAffected: f.docsAffected}, nil
}
func (f *fakeClient) SearchIndex(context.Context, *clusterpb.SearchIndexRequest, ...grpc.CallOption) (*clusterpb.SearchIndexResponse, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &clusterpb.SearchIndexResponse{Hits: f.hits}, nil
}
func (f *fakeClient) GetSummary(context.Context, *clusterpb.GetSummaryRequest, ...grpc.CallOption) (*clusterpb.GetSummaryResponse, error) {
	return &clusterpb.GetSummaryResponse{}, nil
}
func (f *fakeClient) RaftRequest(context.Context, *clusterpb.RaftRequestMessage, ...grpc.CallOption) (*clusterpb.RaftRequestResponse, error) {
	return &clusterpb.RaftRequestResponse{}, nil
}
func (f *fakeClient) Join(context.Context, *clusterpb.JoinRequest, ...grpc.CallOption) (*clusterpb.JoinResponse, error) {
	return &clusterpb.JoinResponse{}, nil
}

func TestSearchFoldsHitsAcrossPeers(t *testing.T) {
	peers := []clusterpb.ClusterClient{&fakeClient{hits: 3}, &fakeClient{hits: 5}}
	h := New("books", nil, peers)

	res, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), res.Hits)
}

func TestAddDocumentPicksExactlyOnePeer(t *testing.T) {
	a := &fakeClient{}
	b := &fakeClient{}
	h := New("books", nil, []clusterpb.ClusterClient{a, b})

	err := h.AddDocument(document.AddDocument{Document: []byte(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, 1, a.placeCalls+b.placeCalls)
}

func TestDeleteTermSumsAcrossPeers(t *testing.T) {
	peers := []clusterpb.ClusterClient{&fakeClient{docsAffected: 2}, &fakeClient{docsAffected: 3}}
	h := New("books", nil, peers)

	affected, err := h.DeleteTerm(document.DeleteDoc{TermsMap: map[string]string{"f": "v"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), affected.DocsAffected)
}

func TestSearchWithNoPeersErrors(t *testing.T) {
	h := New("books", nil, nil)
	_, err := h.Search(query.Search{Query: &query.Query{IsAll: true}})
	assert.Error(t, err)
}

func TestGetIndexReturnsNotOK(t *testing.T) {
	h := New("books", nil, nil)
	idx, ok := h.GetIndex()
	assert.Nil(t, idx)
	assert.False(t, ok)
}
