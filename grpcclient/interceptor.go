package grpcclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	srpc "github.com/xizhibei/go-square-rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type clientMetrics struct {
	grpcMetrics *grpcprom.ClientMetrics
	// inFlightRPCs counts sent, not yet completed calls by service and method.
	inFlightRPCs *prometheus.GaugeVec
}

// newClientMetrics must be called at most once per registerer.
func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	grpcMetrics := grpcprom.NewClientMetrics(
		grpcprom.WithClientHandlingTimeHistogram(),
	)

	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "grpc_in_flight",
		Help: "Number of in-flight (sent, not yet completed) RPCs",
	}, []string{"method", "service"})

	reg.MustRegister(grpcMetrics, inFlight)

	return &clientMetrics{
		grpcMetrics:  grpcMetrics,
		inFlightRPCs: inFlight,
	}
}

type clientInterceptor struct {
	timeout time.Duration
	metrics *clientMetrics
	clk     clock.Clock
}

// interceptUnary fulfils the grpc.UnaryClientInterceptor interface.
func (ci *clientInterceptor) interceptUnary(
	ctx context.Context,
	fullMethod string,
	req,
	reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption) error {
	localCtx, cancel := context.WithTimeout(ctx, ci.timeout)
	defer cancel()

	nowTS := strconv.FormatInt(ci.clk.Now().UnixNano(), 10)
	localCtx = metadata.AppendToOutgoingContext(localCtx, srpc.ClientRequestTimeKey, nowTS)

	service, method := splitMethodName(fullMethod)
	labels := prometheus.Labels{
		"method":  method,
		"service": service,
	}
	ci.metrics.inFlightRPCs.With(labels).Inc()
	defer ci.metrics.inFlightRPCs.With(labels).Dec()

	begin := ci.clk.Now()
	err := invoker(localCtx, fullMethod, req, reply, cc, opts...)
	if err != nil && status.Code(err) == codes.DeadlineExceeded {
		return deadlineDetails{
			service: service,
			method:  method,
			latency: ci.clk.Since(begin),
		}
	}
	return err
}

// splitMethodName extracts service and method from "/package.Service/Method".
func splitMethodName(fullMethodName string) (string, string) {
	fullMethodName = strings.TrimPrefix(fullMethodName, "/")
	if i := strings.Index(fullMethodName, "/"); i >= 0 {
		return fullMethodName[:i], fullMethodName[i+1:]
	}
	return "unknown", "unknown"
}

// deadlineDetails replaces DeadlineExceeded errors, naming the call that
// timed out and how long it ran.
type deadlineDetails struct {
	service string
	method  string
	latency time.Duration
}

func (dd deadlineDetails) Error() string {
	return fmt.Sprintf("%s.%s timed out after %d ms",
		dd.service, dd.method, int64(dd.latency/time.Millisecond))
}

// GRPCStatus keeps status.Code working on the wrapped error.
func (dd deadlineDetails) GRPCStatus() *status.Status {
	return status.New(codes.DeadlineExceeded, dd.Error())
}
