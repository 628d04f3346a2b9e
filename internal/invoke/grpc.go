package invoke

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/dpup/rabbitmiles/server/api/v1"
)

// HandlerFunc processes a JSON payload and returns a JSON result
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Server implements api.TrailMatchServiceServer over the payload handlers
type Server struct {
	api.UnimplementedTrailMatchServiceServer

	match    HandlerFunc
	backfill HandlerFunc
	refresh  HandlerFunc
	reset    HandlerFunc
}

// NewServer creates a gRPC server backed by the given handlers
func NewServer(match *MatchHandler, backfill *BackfillHandler, refresh *RefreshHandler, reset *ResetHandler) *Server {
	return &Server{
		match:    match.Handle,
		backfill: backfill.Handle,
		refresh:  refresh.Handle,
		reset:    reset.Handle,
	}
}

// MatchActivity matches one activity, or every record of an SQS-shaped batch
func (s *Server) MatchActivity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, s.match, req)
}

// RunBackfill queues the matching backlog
func (s *Server) RunBackfill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, s.backfill, req)
}

// RefreshTrails downloads and stores the trail documents
func (s *Server) RefreshTrails(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, s.refresh, req)
}

// ResetMatching returns an athlete's activities to the backlog
func (s *Server) ResetMatching(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, s.reset, req)
}

func call(ctx context.Context, h HandlerFunc, req *structpb.Struct) (*structpb.Struct, error) {
	var payload []byte
	if req != nil {
		var err error
		if payload, err = protojson.Marshal(req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
		}
	}

	result, err := h(ctx, payload)
	if err != nil {
		return nil, StatusFromError(err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(result, out); err != nil {
		return nil, status.Errorf(codes.Internal, "invalid response: %v", err)
	}
	return out, nil
}
