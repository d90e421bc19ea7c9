// Command square-client squares a number on a remote square server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xizhibei/go-square-rpc/config"
	"github.com/xizhibei/go-square-rpc/grpcclient"
	"github.com/xizhibei/go-square-rpc/mqttjson"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"github.com/xizhibei/go-square-rpc/wsjson"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "path to the YAML configuration file")
	number := flag.Float64("number", math.NaN(), "number to square, overrides the configured one")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	log := logger.Sugar().With("module", "square-client")

	cfg, err := config.LoadClientConfig(*configFile)
	if err != nil {
		log.Fatalf("Load config: %+v", err)
	}
	if !math.IsNaN(*number) {
		cfg.Number = *number
	}

	ctx := context.Background()
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = version
	}
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		log.Warnf("Telemetry disabled: %v", err)
		tel, _ = telemetry.NewNoop()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration)
	defer cancel()

	var result float64
	switch cfg.Transport {
	case "mqtt":
		result, err = squareMQTT(ctx, cfg, tel)
	case "websocket":
		result, err = squareWebSocket(ctx, cfg, tel)
	default:
		result, err = squareGRPC(ctx, cfg, tel)
	}
	if err != nil {
		log.Fatalf("Square %v: %+v", cfg.Number, err)
	}

	fmt.Println(result)
}

func squareGRPC(ctx context.Context, cfg config.ClientConfig, tel *telemetry.Telemetry) (float64, error) {
	client, err := grpcclient.Dial(cfg.ServerAddress,
		grpcclient.WithTimeout(cfg.Timeout.Duration),
		grpcclient.WithCompressor(cfg.Compressor),
		grpcclient.WithTelemetry(tel),
	)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	return client.Square(ctx, cfg.Number)
}

func squareMQTT(ctx context.Context, cfg config.ClientConfig, tel *telemetry.Telemetry) (float64, error) {
	adapter, err := cfg.MQTT.NewAdapter("client")
	if err != nil {
		return 0, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return 0, errors.Wrapf(err, "connect to %s", cfg.MQTT.URI)
	}

	client := mqttjson.NewClient(adapter, cfg.MQTT.TopicPrefix)
	defer client.Close()
	client.SetQoS(cfg.MQTT.QoS)
	client.SetTelemetry(tel)
	if err := client.SetEncoding(cfg.Compressor); err != nil {
		return 0, err
	}

	return client.Square(ctx, cfg.MQTT.ServerID, cfg.Number)
}

func squareWebSocket(ctx context.Context, cfg config.ClientConfig, tel *telemetry.Telemetry) (float64, error) {
	client, err := wsjson.Dial(ctx, cfg.WebSocketURL, nil)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	client.SetTelemetry(tel)
	if err := client.SetEncoding(cfg.Compressor); err != nil {
		return 0, err
	}

	return client.Square(ctx, cfg.Number)
}
