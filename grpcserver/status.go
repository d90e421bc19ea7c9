package grpcserver

import (
	srpc "github.com/xizhibei/go-square-rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code maps a dispatch status onto the closest gRPC code.
func Code(rpcStatus int) codes.Code {
	switch rpcStatus {
	case srpc.RPCStatusOK:
		return codes.OK
	case srpc.RPCStatusClientError:
		return codes.InvalidArgument
	case srpc.RPCStatusNotFound:
		return codes.Unimplemented
	case srpc.RPCStatusRequestTimeout:
		return codes.DeadlineExceeded
	case srpc.RPCStatusTooManyRequests:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// statusError turns a failed response into a gRPC status error.
func statusError(res *srpc.Response) error {
	if res == nil {
		return status.Error(codes.Internal, srpc.ErrNoReply.Error())
	}

	msg := "unknown error"
	if res.Error != nil {
		msg = res.Error.Error()
	}
	return status.Error(Code(res.Status), msg)
}
