// Command square-server serves square.v1.SquareService over gRPC and,
// when configured, over MQTT and WebSocket.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/config"
	"github.com/xizhibei/go-square-rpc/grpcserver"
	"github.com/xizhibei/go-square-rpc/mqttjson"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"github.com/xizhibei/go-square-rpc/wsjson"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	log := logger.Sugar().With("module", "square-server")

	cfg, err := config.LoadServerConfig(*configFile)
	if err != nil {
		log.Fatalf("Load config: %+v", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("%+v", err)
	}
}

func newTelemetry(ctx context.Context, cfg telemetry.Config, log *zap.SugaredLogger) *telemetry.Telemetry {
	var (
		tel *telemetry.Telemetry
		err error
	)
	if cfg.Enabled {
		if cfg.ServiceVersion == "" {
			cfg.ServiceVersion = version
		}
		tel, err = telemetry.New(ctx, cfg)
	} else {
		tel, err = telemetry.NewFromEnv(ctx, cfg.ServiceName, version)
	}
	if err != nil {
		log.Warnf("Telemetry disabled: %v", err)
		tel, _ = telemetry.NewNoop()
	}
	return tel
}

func coreOptions(cfg config.ServerConfig) []srpc.ServerOption {
	opts := []srpc.ServerOption{
		srpc.WithLogResponse(cfg.LogResponse),
		srpc.WithWorkerNum(cfg.Workers),
		srpc.WithLimiter(cfg.Limiter.Interval.Duration, cfg.Limiter.Burst),
	}
	if cfg.Name != "" {
		opts = append(opts, srpc.WithServerName(cfg.Name))
	}
	if cfg.HandlerTimeout.Duration > 0 {
		opts = append(opts, srpc.WithDefaultTimeout(cfg.HandlerTimeout.Duration))
	}
	if cfg.Limiter.Mode == "wait" {
		opts = append(opts, srpc.WithLimiterWait())
	} else {
		opts = append(opts, srpc.WithLimiterReject())
	}
	return opts
}

// checkOrigin accepts same origin requests and the listed origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func run(cfg config.ServerConfig, log *zap.SugaredLogger) error {
	ctx := context.Background()

	tel := newTelemetry(ctx, cfg.Telemetry, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Shutdown telemetry: %v", err)
		}
	}()

	core := srpc.NewServer(coreOptions(cfg)...)
	defer core.Close()
	core.SetTelemetry(tel)
	square.Register(core, cfg.HandlerTimeout.Duration)

	server := grpcserver.New(core,
		grpcserver.WithRegisterer(prometheus.DefaultRegisterer),
		grpcserver.WithTelemetry(tel),
		grpcserver.WithMaxConcurrentStreams(cfg.GRPC.MaxConcurrentStreams),
	)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.GRPC.Address)
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- server.Serve(lis)
	}()
	log.Infof("Serving %v on %s", core.Methods(), lis.Addr())

	if cfg.MQTT != nil {
		adapter, err := cfg.MQTT.NewAdapter("server")
		if err != nil {
			return errors.Wrap(err, "create mqtt client")
		}
		mqttServer := mqttjson.NewServer(adapter, core, cfg.MQTT.TopicPrefix, cfg.MQTT.ServerID,
			mqttjson.WithQoS(cfg.MQTT.QoS),
		)
		defer mqttServer.Close()
		log.Infof("Serving over mqtt on %s", mqttjson.RequestTopic(cfg.MQTT.TopicPrefix, cfg.MQTT.ServerID))
	}

	if cfg.WebSocket != nil {
		wsServer := wsjson.NewServer(core, wsjson.WithCheckOrigin(checkOrigin(cfg.WebSocket.AllowedOrigins)))
		defer wsServer.Close()

		mux := http.NewServeMux()
		mux.Handle(cfg.WebSocket.URLPath(), wsServer)
		httpServer := &http.Server{
			Addr:              cfg.WebSocket.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		defer httpServer.Close()
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrap(err, "websocket server")
			}
		}()
		log.Infof("Serving over websocket on ws://%s%s", cfg.WebSocket.Address, cfg.WebSocket.URLPath())
	}

	if cfg.DebugAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		debugServer := &http.Server{
			Addr:              cfg.DebugAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		defer debugServer.Close()
		go func() {
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrap(err, "debug server")
			}
		}()
		log.Infof("Metrics on http://%s/metrics", cfg.DebugAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, shutting down...", sig)
		server.GracefulStop()
		return nil
	case err := <-errCh:
		server.Stop()
		return err
	}
}
