package invoke

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dpup/rabbitmiles/server/internal/dispatch"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/services"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

// isMatchFailure reports whether err is a reportable matching failure
func isMatchFailure(err error) bool {
	return errors.Is(err, trail.ErrGeometryLoad) || errors.Is(err, services.ErrStorageWrite)
}

// StatusFromError maps handler errors to gRPC status errors
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, trail.ErrGeometryLoad), errors.Is(err, services.ErrRefreshFailed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, dispatch.ErrRejected):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		// Unclassified errors may carry driver or network details
		return status.Error(codes.Internal, "internal server error")
	}
}
