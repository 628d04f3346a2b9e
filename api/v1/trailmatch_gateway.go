package v1

import (
	"context"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/grpclog"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBytes bounds gateway request bodies
const maxRequestBytes = 1 << 20

type gatewayRoute struct {
	method  string
	pattern string
	rpc     string
	call    func(TrailMatchServiceClient, context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)
}

var gatewayRoutes = []gatewayRoute{
	{
		method:  http.MethodPost,
		pattern: "/api/v1/activities/{activity_id}/match",
		rpc:     TrailMatchService_MatchActivity_FullMethodName,
		call:    TrailMatchServiceClient.MatchActivity,
	},
	{
		method:  http.MethodPost,
		pattern: "/api/v1/backfill",
		rpc:     TrailMatchService_RunBackfill_FullMethodName,
		call:    TrailMatchServiceClient.RunBackfill,
	},
	{
		method:  http.MethodPost,
		pattern: "/api/v1/trails/refresh",
		rpc:     TrailMatchService_RefreshTrails_FullMethodName,
		call:    TrailMatchServiceClient.RefreshTrails,
	},
	{
		method:  http.MethodPost,
		pattern: "/api/v1/athletes/{athlete_id}/reset-matching",
		rpc:     TrailMatchService_ResetMatching_FullMethodName,
		call:    TrailMatchServiceClient.ResetMatching,
	},
}

// RegisterTrailMatchServiceHandlerFromEndpoint dials endpoint and registers
// the HTTP routes on mux. The connection is closed when ctx is done.
func RegisterTrailMatchServiceHandlerFromEndpoint(ctx context.Context, mux *runtime.ServeMux, endpoint string, opts []grpc.DialOption) (err error) {
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if cerr := conn.Close(); cerr != nil {
				grpclog.Errorf("Failed to close conn to %s: %v", endpoint, cerr)
			}
			return
		}
		go func() {
			<-ctx.Done()
			if cerr := conn.Close(); cerr != nil {
				grpclog.Errorf("Failed to close conn to %s: %v", endpoint, cerr)
			}
		}()
	}()

	return RegisterTrailMatchServiceHandlerClient(ctx, mux, NewTrailMatchServiceClient(conn))
}

// RegisterTrailMatchServiceHandlerClient registers the HTTP routes on mux,
// forwarding requests to client. The request body, path parameters and query
// parameters are merged into the request Struct; path parameters win.
func RegisterTrailMatchServiceHandlerClient(ctx context.Context, mux *runtime.ServeMux, client TrailMatchServiceClient) error {
	for _, route := range gatewayRoutes {
		err := mux.HandlePath(route.method, route.pattern, func(w http.ResponseWriter, req *http.Request, pathParams map[string]string) {
			ctx, cancel := context.WithCancel(req.Context())
			defer cancel()

			_, outboundMarshaler := runtime.MarshalerForRequest(mux, req)
			annotatedCtx, err := runtime.AnnotateContext(ctx, mux, req, route.rpc, runtime.WithHTTPPathPattern(route.pattern))
			if err != nil {
				runtime.HTTPError(ctx, mux, outboundMarshaler, w, req, err)
				return
			}

			in, err := requestStruct(req, pathParams)
			if err != nil {
				runtime.HTTPError(annotatedCtx, mux, outboundMarshaler, w, req, err)
				return
			}

			resp, err := route.call(client, annotatedCtx, in)
			if err != nil {
				runtime.HTTPError(annotatedCtx, mux, outboundMarshaler, w, req, err)
				return
			}

			runtime.ForwardResponseMessage(annotatedCtx, mux, outboundMarshaler, w, req, resp, mux.GetForwardResponseOptions()...)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// requestStruct builds the RPC request from a JSON body plus URL parameters
func requestStruct(req *http.Request, pathParams map[string]string) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBytes))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to read body: %v", err)
	}
	if len(body) > 0 {
		if err := protojson.Unmarshal(body, in); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "request body must be a JSON object: %v", err)
		}
		if in.Fields == nil {
			in.Fields = map[string]*structpb.Value{}
		}
	}

	for key, values := range req.URL.Query() {
		if _, ok := in.Fields[key]; !ok && len(values) > 0 {
			in.Fields[key] = structpb.NewStringValue(values[0])
		}
	}
	for key, value := range pathParams {
		in.Fields[key] = structpb.NewStringValue(value)
	}
	return in, nil
}
