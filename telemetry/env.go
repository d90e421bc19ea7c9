package telemetry

import (
	"context"
	"os"
	"strconv"
)

// NewFromEnv builds a Telemetry from the standard OTEL_* environment variables.
//
//	OTEL_ENABLED                 enable exporting, default false
//	OTEL_DEBUG                   export to stdout instead of OTLP
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector address, default localhost:4317
//	ENVIRONMENT                  deployment environment, default development
func NewFromEnv(ctx context.Context, serviceName, serviceVersion string) (*Telemetry, error) {
	return New(ctx, Config{
		Enabled:        envBool("OTEL_ENABLED"),
		Debug:          envBool("OTEL_DEBUG"),
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	})
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
