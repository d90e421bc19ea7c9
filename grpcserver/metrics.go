package grpcserver

import (
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// serverMetrics is the set of collectors a Server registers.
type serverMetrics struct {
	grpcMetrics *grpcprom.ServerMetrics
	// rpcLag observes the time between the client sending a call and the
	// server receiving it.
	rpcLag prometheus.Histogram
	// responseTime and errorCount are fed by the dispatch core.
	responseTime *prometheus.HistogramVec
	errorCount   *prometheus.GaugeVec
}

// newServerMetrics builds the collectors and registers them with reg. It must
// be called at most once per registerer, or names will conflict.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	grpcMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}),
		),
	)

	rpcLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grpc_lag",
		Help:    "Delta between client RPC send time and server RPC receipt time",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	responseTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srpc_response_time_seconds",
		Help:    "Time spent in the dispatch core per call",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"method", "name", "status"})

	errorCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srpc_errors",
		Help: "Number of calls answered with an error",
	}, []string{"method", "name", "status", "message"})

	reg.MustRegister(grpcMetrics, rpcLag, responseTime, errorCount)

	return &serverMetrics{
		grpcMetrics:  grpcMetrics,
		rpcLag:       rpcLag,
		responseTime: responseTime,
		errorCount:   errorCount,
	}
}
