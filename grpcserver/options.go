package grpcserver

import (
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"google.golang.org/grpc"
)

type options struct {
	registerer           prometheus.Registerer
	clk                  clock.Clock
	telemetry            *telemetry.Telemetry
	maxConcurrentStreams uint32
	grpcOptions          []grpc.ServerOption
}

// Option configures a Server.
type Option func(*options)

// WithRegisterer registers the server metrics with reg.
// Without it the metrics go to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithClock sets the clock used to measure call lag.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clk = clk
	}
}

// WithTelemetry installs the OpenTelemetry stats handler when tel is enabled.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) {
		o.telemetry = tel
	}
}

// WithMaxConcurrentStreams limits the number of concurrent calls per connection.
func WithMaxConcurrentStreams(n uint32) Option {
	return func(o *options) {
		o.maxConcurrentStreams = n
	}
}

// WithServerOptions appends raw grpc server options.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(o *options) {
		o.grpcOptions = append(o.grpcOptions, opts...)
	}
}
