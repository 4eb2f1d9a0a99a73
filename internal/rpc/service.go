package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// IndexServer is the interface CreateIndex..Search of spec.md §4.5.
type IndexServer interface {
	CreateIndex(context.Context, *CreateIndexRequest) (*CreateIndexResponse, error)
	DeleteIndex(context.Context, *DeleteIndexRequest) (*DeleteIndexResponse, error)
	GetIndex(context.Context, *GetIndexRequest) (*GetIndexResponse, error)
	ModifyIndex(context.Context, *ModifyIndexRequest) (*ModifyIndexResponse, error)
	IncrementShards(context.Context, *IncrementShardsRequest) (*IncrementShardsResponse, error)
	DecrementShards(context.Context, *DecrementShardsRequest) (*DecrementShardsResponse, error)
	PutDocuments(context.Context, *PutDocumentsRequest) (*PutDocumentsResponse, error)
	DeleteDocuments(context.Context, *DeleteDocumentsRequest) (*DeleteDocumentsResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	Rollback(context.Context, *RollbackRequest) (*RollbackResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
}

// HealthServer is HealthCheckService of spec.md §4.5.
type HealthServer interface {
	Liveness(context.Context, *LivenessRequest) (*LivenessResponse, error)
	Readiness(context.Context, *ReadinessRequest) (*ReadinessResponse, error)
}

func unaryHandler[Req any, Resp any](call func(ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{FullMethod: ""}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// IndexServiceName is the gRPC service name peers dial, matching the
// {Service}/{Method} routing spec.md §4.5 describes.
const IndexServiceName = "bayard.IndexService"

// IndexServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would generate from the IndexService .proto fragment: a plain
// grpc.ServiceDesc naming each unary method and its handler. Message bodies
// are marshaled with the JSON codec of codec.go rather than protobuf wire
// format, per spec.md §4.5's "opaque bytes with the JSON payload" framing.
var IndexServiceDesc = grpc.ServiceDesc{
	ServiceName: IndexServiceName,
	HandlerType: (*IndexServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateIndex", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).CreateIndex)(srv, ctx, dec, i)
		}},
		{MethodName: "DeleteIndex", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).DeleteIndex)(srv, ctx, dec, i)
		}},
		{MethodName: "GetIndex", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).GetIndex)(srv, ctx, dec, i)
		}},
		{MethodName: "ModifyIndex", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).ModifyIndex)(srv, ctx, dec, i)
		}},
		{MethodName: "IncrementShards", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).IncrementShards)(srv, ctx, dec, i)
		}},
		{MethodName: "DecrementShards", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).DecrementShards)(srv, ctx, dec, i)
		}},
		{MethodName: "PutDocuments", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).PutDocuments)(srv, ctx, dec, i)
		}},
		{MethodName: "DeleteDocuments", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).DeleteDocuments)(srv, ctx, dec, i)
		}},
		{MethodName: "Commit", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).Commit)(srv, ctx, dec, i)
		}},
		{MethodName: "Rollback", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).Rollback)(srv, ctx, dec, i)
		}},
		{MethodName: "Search", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(IndexServer).Search)(srv, ctx, dec, i)
		}},
	},
	Metadata: "bayard/index_service.proto",
}

// HealthServiceName is the gRPC service name for HealthCheckService.
const HealthServiceName = "bayard.HealthCheckService"

var HealthServiceDesc = grpc.ServiceDesc{
	ServiceName: HealthServiceName,
	HandlerType: (*HealthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Liveness", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(HealthServer).Liveness)(srv, ctx, dec, i)
		}},
		{MethodName: "Readiness", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return unaryHandler(srv.(HealthServer).Readiness)(srv, ctx, dec, i)
		}},
	},
	Metadata: "bayard/health_service.proto",
}

// RegisterIndexServer registers an IndexServer implementation on s.
func RegisterIndexServer(s *grpc.Server, srv IndexServer) {
	s.RegisterService(&IndexServiceDesc, srv)
}

// RegisterHealthServer registers a HealthServer implementation on s.
func RegisterHealthServer(s *grpc.Server, srv HealthServer) {
	s.RegisterService(&HealthServiceDesc, srv)
}
