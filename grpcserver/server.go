// Package grpcserver exposes the dispatch core as square.v1.SquareService.
package grpcserver

import (
	"context"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	srpc "github.com/xizhibei/go-square-rpc"
	// Registers the br and deflate grpc compressors.
	_ "github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/squarepb"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ErrNotServing is returned by Addr before Serve was called.
var ErrNotServing = errors.New("[SRPC] grpc server is not serving")

// Server serves SquareService calls through a dispatch core.
type Server struct {
	squarepb.UnimplementedSquareServiceServer

	log     *zap.SugaredLogger
	core    *srpc.Server
	grpc    *grpc.Server
	metrics *serverMetrics
	nextID  atomic.Uint64

	lisMu sync.Mutex
	lis   net.Listener
}

// New creates a Server around core. The square handler must already be
// registered on core; calls to an unregistered method fail with Unimplemented.
func New(core *srpc.Server, opts ...Option) *Server {
	o := options{
		clk: clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	s := &Server{
		log:     zap.S().With("module", "srpc.grpcserver"),
		core:    core,
		metrics: newServerMetrics(o.registerer),
	}

	si := &serverInterceptor{
		metrics: s.metrics,
		clk:     o.clk,
		log:     s.log,
	}

	serverOpts := []grpc.ServerOption{
		grpc.Creds(insecure.NewCredentials()),
		grpc.ChainUnaryInterceptor(
			s.metrics.grpcMetrics.UnaryServerInterceptor(),
			si.interceptUnary,
		),
	}
	if o.maxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(o.maxConcurrentStreams))
	}
	if o.telemetry != nil && o.telemetry.IsEnabled() {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(o.telemetry.TracerProvider()),
			otelgrpc.WithMeterProvider(o.telemetry.MeterProvider()),
		)))
	}
	serverOpts = append(serverOpts, o.grpcOptions...)

	s.grpc = grpc.NewServer(serverOpts...)
	squarepb.RegisterSquareServiceServer(s.grpc, s)
	s.metrics.grpcMetrics.InitializeMetrics(s.grpc)
	core.RegisterMetrics(s.metrics.responseTime, s.metrics.errorCount)

	return s
}

// Square implements squarepb.SquareServiceServer.
func (s *Server) Square(ctx context.Context, req *squarepb.SquareRequest) (*squarepb.SquareResponse, error) {
	c := newContext(ctx, s.nextID.Inc(), square.Method, req)
	s.core.Call(c)

	res := c.GetResponse()
	if res == nil || res.Status != srpc.RPCStatusOK {
		return nil, statusError(res)
	}

	out, ok := res.Result.(*squarepb.SquareResponse)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected result type %T", res.Result)
	}
	return out, nil
}

// Serve accepts connections on lis until Stop or GracefulStop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.lisMu.Lock()
	s.lis = lis
	s.lisMu.Unlock()

	s.log.Infof("Serving %s on %s", squarepb.SquareService_ServiceDesc.ServiceName, lis.Addr())

	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "serve grpc")
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(lis)
}

// Addr returns the address the server listens on.
func (s *Server) Addr() (net.Addr, error) {
	s.lisMu.Lock()
	defer s.lisMu.Unlock()

	if s.lis == nil {
		return nil, ErrNotServing
	}
	return s.lis.Addr(), nil
}

// GracefulStop stops accepting connections and waits for pending calls.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// Stop closes every connection immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}
