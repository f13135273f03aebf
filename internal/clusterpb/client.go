package clusterpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClusterClient is the typed client stub over a *grpc.ClientConn,
// written by hand in place of protoc-gen-go-grpc output.
type ClusterClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	PlaceIndex(ctx context.Context, in *PlaceIndexRequest, opts ...grpc.CallOption) (*PlaceIndexResponse, error)
	ListIndexes(ctx context.Context, in *ListIndexesRequest, opts ...grpc.CallOption) (*ListIndexesResponse, error)
	PlaceDocument(ctx context.Context, in *PlaceDocumentRequest, opts ...grpc.CallOption) (*PlaceDocumentResponse, error)
	DeleteDocument(ctx context.Context, in *DeleteDocumentRequest, opts ...grpc.CallOption) (*DeleteDocumentResponse, error)
	SearchIndex(ctx context.Context, in *SearchIndexRequest, opts ...grpc.CallOption) (*SearchIndexResponse, error)
	GetSummary(ctx context.Context, in *GetSummaryRequest, opts ...grpc.CallOption) (*GetSummaryResponse, error)
	RaftRequest(ctx context.Context, in *RaftRequestMessage, opts ...grpc.CallOption) (*RaftRequestResponse, error)
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
}

type clusterClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterClient wraps conn, typically built with Dial.
func NewClusterClient(conn grpc.ClientConnInterface) ClusterClient {
	return &clusterClient{cc: conn}
}

func (c *clusterClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) PlaceIndex(ctx context.Context, in *PlaceIndexRequest, opts ...grpc.CallOption) (*PlaceIndexResponse, error) {
	out := new(PlaceIndexResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PlaceIndex", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) ListIndexes(ctx context.Context, in *ListIndexesRequest, opts ...grpc.CallOption) (*ListIndexesResponse, error) {
	out := new(ListIndexesResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListIndexes", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) PlaceDocument(ctx context.Context, in *PlaceDocumentRequest, opts ...grpc.CallOption) (*PlaceDocumentResponse, error) {
	out := new(PlaceDocumentResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PlaceDocument", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) DeleteDocument(ctx context.Context, in *DeleteDocumentRequest, opts ...grpc.CallOption) (*DeleteDocumentResponse, error) {
	out := new(DeleteDocumentResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/DeleteDocument", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) SearchIndex(ctx context.Context, in *SearchIndexRequest, opts ...grpc.CallOption) (*SearchIndexResponse, error) {
	out := new(SearchIndexResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SearchIndex", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) GetSummary(ctx context.Context, in *GetSummaryRequest, opts ...grpc.CallOption) (*GetSummaryResponse, error) {
	out := new(GetSummaryResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetSummary", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) RaftRequest(ctx context.Context, in *RaftRequestMessage, opts ...grpc.CallOption) (*RaftRequestResponse, error) {
	out := new(RaftRequestResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RaftRequest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	out := new(JoinResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Join", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Dial opens a plaintext gRPC connection to addr using the loomjson
// codec for every call, and wraps it as a ClusterClient.
func Dial(addr string) (*grpc.ClientConn, ClusterClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, nil, err
	}
	return conn, NewClusterClient(conn), nil
}
