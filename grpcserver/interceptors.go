package grpcserver

import (
	"context"
	"strconv"
	"time"

	"github.com/jmhodges/clock"
	srpc "github.com/xizhibei/go-square-rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type serverInterceptor struct {
	metrics *serverMetrics
	clk     clock.Clock
	log     *zap.SugaredLogger
}

// interceptUnary fulfils the grpc.UnaryServerInterceptor interface.
func (si *serverInterceptor) interceptUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if info == nil {
		return nil, status.Error(codes.Internal, "passed nil *grpc.UnaryServerInfo")
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok && len(md[srpc.ClientRequestTimeKey]) > 0 {
		if err := si.observeLatency(md[srpc.ClientRequestTimeKey][0]); err != nil {
			return nil, err
		}
	}

	begin := si.clk.Now()
	resp, err := handler(ctx, req)
	si.log.Debugf("Call %s [%s] (%v)", info.FullMethod, status.Code(err), si.clk.Since(begin).Round(time.Microsecond))

	return resp, err
}

// observeLatency publishes the client to server lag of a call. clientReqTime
// must be a decimal unix nanosecond timestamp.
func (si *serverInterceptor) observeLatency(clientReqTime string) error {
	reqTimeUnixNanos, err := strconv.ParseInt(clientReqTime, 10, 64)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "grpc metadata had illegal %s value: %q - %s",
			srpc.ClientRequestTimeKey, clientReqTime, err)
	}

	elapsed := si.clk.Since(time.Unix(0, reqTimeUnixNanos))
	si.metrics.rpcLag.Observe(elapsed.Seconds())
	return nil
}
