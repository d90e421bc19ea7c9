package grpcclient

import (
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"google.golang.org/grpc"
)

// DefaultTimeout bounds a call when the caller's context has no earlier deadline.
const DefaultTimeout = 10 * time.Second

type options struct {
	timeout     time.Duration
	compressor  string
	registerer  prometheus.Registerer
	telemetry   *telemetry.Telemetry
	clk         clock.Clock
	dialOptions []grpc.DialOption
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the per call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithCompressor compresses every request with the named grpc compressor,
// e.g. "gzip", "br" or "deflate".
func WithCompressor(name string) Option {
	return func(o *options) {
		o.compressor = name
	}
}

// WithMetrics registers the client metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTelemetry installs the OpenTelemetry stats handler when tel is enabled.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) {
		o.telemetry = tel
	}
}

// WithClock sets the clock stamped into outgoing calls.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clk = clk
	}
}

// WithDialOptions appends raw grpc dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}
