package rpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dreamware/hermes/internal/herrors"
)

// toStatus maps a herrors.Kind to the grpc status code its peer should
// see, the inverse of fromStatus below (spec.md §4.7).
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := herrors.KindOf(err)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	switch kind {
	case herrors.NotFound:
		return status.Error(codes.NotFound, err.Error())
	case herrors.Conflict:
		return status.Error(codes.Aborted, err.Error())
	case herrors.NoSpace:
		return status.Error(codes.ResourceExhausted, err.Error())
	case herrors.InvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case herrors.Cancelled:
		return status.Error(codes.Canceled, err.Error())
	case herrors.Shutdown:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps a grpc-layer error back to a herrors.Kind (spec.md §4.7:
// "codes.DeadlineExceeded → herrors.RpcTimeout", etc., grounded on
// bb-storage's codes/status usage for its blob access RPCs).
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return herrors.Wrap(herrors.RpcUnreachable, "rpc: non-status transport error", err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return herrors.Wrap(herrors.RpcTimeout, "rpc: deadline exceeded", err)
	case codes.Unavailable:
		return herrors.Wrap(herrors.RpcUnreachable, "rpc: peer unavailable", err)
	case codes.Aborted:
		return herrors.Wrap(herrors.RpcRemoteAbort, "rpc: remote aborted", err)
	case codes.NotFound:
		return herrors.Wrap(herrors.NotFound, "rpc: remote not found", err)
	case codes.ResourceExhausted:
		return herrors.Wrap(herrors.NoSpace, "rpc: remote out of space", err)
	case codes.InvalidArgument:
		return herrors.Wrap(herrors.InvalidArgument, "rpc: invalid argument", err)
	case codes.Canceled:
		return herrors.Wrap(herrors.Cancelled, "rpc: cancelled", err)
	default:
		return herrors.Wrap(herrors.RpcRemoteAbort, "rpc: remote error", err)
	}
}
