// Package v1 defines the TrailMatchService gRPC API and its HTTP gateway
// routes. Messages are JSON-shaped google.protobuf.Struct values carrying the
// same payloads accepted by the Lambda entrypoints.
package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TrailMatchService_ServiceName is the fully qualified service name
const TrailMatchService_ServiceName = "rabbitmiles.v1.TrailMatchService"

const (
	TrailMatchService_MatchActivity_FullMethodName = "/rabbitmiles.v1.TrailMatchService/MatchActivity"
	TrailMatchService_RunBackfill_FullMethodName   = "/rabbitmiles.v1.TrailMatchService/RunBackfill"
	TrailMatchService_RefreshTrails_FullMethodName = "/rabbitmiles.v1.TrailMatchService/RefreshTrails"
	TrailMatchService_ResetMatching_FullMethodName = "/rabbitmiles.v1.TrailMatchService/ResetMatching"
)

// TrailMatchServiceClient is the client API for TrailMatchService
type TrailMatchServiceClient interface {
	MatchActivity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RunBackfill(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RefreshTrails(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ResetMatching(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type trailMatchServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTrailMatchServiceClient creates a client over an existing connection
func NewTrailMatchServiceClient(cc grpc.ClientConnInterface) TrailMatchServiceClient {
	return &trailMatchServiceClient{cc}
}

func (c *trailMatchServiceClient) MatchActivity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TrailMatchService_MatchActivity_FullMethodName, in, opts...)
}

func (c *trailMatchServiceClient) RunBackfill(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TrailMatchService_RunBackfill_FullMethodName, in, opts...)
}

func (c *trailMatchServiceClient) RefreshTrails(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TrailMatchService_RefreshTrails_FullMethodName, in, opts...)
}

func (c *trailMatchServiceClient) ResetMatching(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TrailMatchService_ResetMatching_FullMethodName, in, opts...)
}

func (c *trailMatchServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TrailMatchServiceServer is the server API for TrailMatchService
type TrailMatchServiceServer interface {
	MatchActivity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBackfill(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshTrails(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetMatching(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedTrailMatchServiceServer can be embedded for forward
// compatibility
type UnimplementedTrailMatchServiceServer struct{}

func (UnimplementedTrailMatchServiceServer) MatchActivity(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MatchActivity not implemented")
}

func (UnimplementedTrailMatchServiceServer) RunBackfill(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RunBackfill not implemented")
}

func (UnimplementedTrailMatchServiceServer) RefreshTrails(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RefreshTrails not implemented")
}

func (UnimplementedTrailMatchServiceServer) ResetMatching(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResetMatching not implemented")
}

// RegisterTrailMatchServiceServer registers srv with a gRPC server
func RegisterTrailMatchServiceServer(s grpc.ServiceRegistrar, srv TrailMatchServiceServer) {
	s.RegisterService(&TrailMatchService_ServiceDesc, srv)
}

// unaryHandler adapts one server method to a grpc.MethodDesc handler
func unaryHandler(method string, call func(TrailMatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TrailMatchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TrailMatchServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TrailMatchService_ServiceDesc is the grpc.ServiceDesc for TrailMatchService
var TrailMatchService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: TrailMatchService_ServiceName,
	HandlerType: (*TrailMatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MatchActivity",
			Handler:    unaryHandler(TrailMatchService_MatchActivity_FullMethodName, TrailMatchServiceServer.MatchActivity),
		},
		{
			MethodName: "RunBackfill",
			Handler:    unaryHandler(TrailMatchService_RunBackfill_FullMethodName, TrailMatchServiceServer.RunBackfill),
		},
		{
			MethodName: "RefreshTrails",
			Handler:    unaryHandler(TrailMatchService_RefreshTrails_FullMethodName, TrailMatchServiceServer.RefreshTrails),
		},
		{
			MethodName: "ResetMatching",
			Handler:    unaryHandler(TrailMatchService_ResetMatching_FullMethodName, TrailMatchServiceServer.ResetMatching),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rabbitmiles/v1/trailmatch.proto",
}
