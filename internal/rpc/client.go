package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin wrapper around a grpc.ClientConn issuing the JSON-coded
// unary calls of IndexServiceDesc against one peer. The cluster router
// keeps one Client per node it has ever dialed.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a peer's gRPC address, forcing the JSON codec
// registered in codec.go for every call on this connection.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func invoke[Req any, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	resp := new(Resp)
	fullMethod := "/" + IndexServiceName + "/" + method
	if err := c.conn.Invoke(ctx, fullMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateIndex(ctx context.Context, req *CreateIndexRequest) (*CreateIndexResponse, error) {
	return invoke[CreateIndexRequest, CreateIndexResponse](ctx, c, "CreateIndex", req)
}

func (c *Client) DeleteIndex(ctx context.Context, req *DeleteIndexRequest) (*DeleteIndexResponse, error) {
	return invoke[DeleteIndexRequest, DeleteIndexResponse](ctx, c, "DeleteIndex", req)
}

func (c *Client) GetIndex(ctx context.Context, req *GetIndexRequest) (*GetIndexResponse, error) {
	return invoke[GetIndexRequest, GetIndexResponse](ctx, c, "GetIndex", req)
}

func (c *Client) ModifyIndex(ctx context.Context, req *ModifyIndexRequest) (*ModifyIndexResponse, error) {
	return invoke[ModifyIndexRequest, ModifyIndexResponse](ctx, c, "ModifyIndex", req)
}

func (c *Client) IncrementShards(ctx context.Context, req *IncrementShardsRequest) (*IncrementShardsResponse, error) {
	return invoke[IncrementShardsRequest, IncrementShardsResponse](ctx, c, "IncrementShards", req)
}

func (c *Client) DecrementShards(ctx context.Context, req *DecrementShardsRequest) (*DecrementShardsResponse, error) {
	return invoke[DecrementShardsRequest, DecrementShardsResponse](ctx, c, "DecrementShards", req)
}

func (c *Client) PutDocuments(ctx context.Context, req *PutDocumentsRequest) (*PutDocumentsResponse, error) {
	return invoke[PutDocumentsRequest, PutDocumentsResponse](ctx, c, "PutDocuments", req)
}

func (c *Client) DeleteDocuments(ctx context.Context, req *DeleteDocumentsRequest) (*DeleteDocumentsResponse, error) {
	return invoke[DeleteDocumentsRequest, DeleteDocumentsResponse](ctx, c, "DeleteDocuments", req)
}

func (c *Client) Commit(ctx context.Context, req *CommitRequest) (*CommitResponse, error) {
	return invoke[CommitRequest, CommitResponse](ctx, c, "Commit", req)
}

func (c *Client) Rollback(ctx context.Context, req *RollbackRequest) (*RollbackResponse, error) {
	return invoke[RollbackRequest, RollbackResponse](ctx, c, "Rollback", req)
}

func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return invoke[SearchRequest, SearchResponse](ctx, c, "Search", req)
}
