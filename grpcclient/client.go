// Package grpcclient calls square.v1.SquareService.
package grpcclient

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	// Registers the br and deflate grpc compressors.
	_ "github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/squarepb"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a SquareService caller. It is safe for concurrent use.
type Client struct {
	log     *zap.SugaredLogger
	conn    *grpc.ClientConn
	client  squarepb.SquareServiceClient
	metrics *clientMetrics
}

// Dial creates a client for the server at addr. Connections are made lazily,
// so an unreachable address only fails the first call.
func Dial(addr string, opts ...Option) (*Client, error) {
	o := options{
		timeout: DefaultTimeout,
		clk:     clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	metrics := newClientMetrics(o.registerer)
	ci := &clientInterceptor{
		timeout: o.timeout,
		metrics: metrics,
		clk:     o.clk,
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(
			metrics.grpcMetrics.UnaryClientInterceptor(),
			ci.interceptUnary,
		),
	}
	if o.compressor != "" {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.UseCompressor(o.compressor)))
	}
	if o.telemetry != nil && o.telemetry.IsEnabled() {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(
			otelgrpc.WithTracerProvider(o.telemetry.TracerProvider()),
			otelgrpc.WithMeterProvider(o.telemetry.MeterProvider()),
		)))
	}
	dialOpts = append(dialOpts, o.dialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	return &Client{
		log:     zap.S().With("module", "srpc.grpcclient"),
		conn:    conn,
		client:  squarepb.NewSquareServiceClient(conn),
		metrics: metrics,
	}, nil
}

func (c *Client) call(ctx context.Context, x float64) (*squarepb.SquareResponse, error) {
	res, err := c.client.Square(ctx, &squarepb.SquareRequest{Number: x})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Square returns x squared by the server. It blocks until the call completes
// or ctx is done.
func (c *Client) Square(ctx context.Context, x float64) (float64, error) {
	res, err := c.call(ctx, x)
	if err != nil {
		return 0, err
	}
	return res.GetNumber(), nil
}

// SquareAsync calls Square in the background and hands the outcome to cb.
// cb runs exactly once, with either a response or an error.
func (c *Client) SquareAsync(ctx context.Context, x float64, cb func(res *squarepb.SquareResponse, err error)) {
	go func() {
		res, err := c.call(ctx, x)
		if err != nil {
			cb(nil, err)
			return
		}
		cb(res, nil)
	}()
}

// Go invokes the call asynchronously. It returns the Call structure
// representing the invocation. The done channel will signal when the call
// is complete by returning the same Call object. If done is nil, Go will
// allocate a new channel. If non-nil, done must be buffered or Go will
// deliberately crash.
func (c *Client) Go(ctx context.Context, x float64, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 10)
	} else if cap(done) == 0 {
		panic("grpcclient: done channel is unbuffered")
	}

	call := &Call{
		Number: x,
		Done:   done,
	}
	go func() {
		call.Response, call.Error = c.call(ctx, x)
		call.done(c.log)
	}()
	return call
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
