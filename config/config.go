// Package config loads the YAML configuration of the square binaries.
package config

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"gopkg.in/yaml.v3"
)

// DefaultAddress is where the server listens and the client dials by default.
const DefaultAddress = "localhost:50052"

// GRPCConfig configures the gRPC listener.
type GRPCConfig struct {
	Address              string `yaml:"address" validate:"required,hostname_port"`
	MaxConcurrentStreams uint32 `yaml:"maxConcurrentStreams"`
}

// LimiterConfig configures the token bucket in front of the handlers.
// Burst calls are allowed at once, refilled one per Interval.
type LimiterConfig struct {
	Interval Duration `yaml:"interval"`
	Burst    int      `yaml:"burst" validate:"min=1"`
	// Mode is either "reject", failing calls over the limit, or "wait",
	// queueing them until the caller gives up.
	Mode string `yaml:"mode" validate:"oneof=reject wait"`
}

// MQTTConfig configures the broker connection of the MQTT transport.
type MQTTConfig struct {
	URI         string   `yaml:"uri" validate:"required,url"`
	ClientID    string   `yaml:"clientID"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TopicPrefix string   `yaml:"topicPrefix" validate:"required"`
	ServerID    string   `yaml:"serverID" validate:"required"`
	KeepAlive   Duration `yaml:"keepAlive"`
	QoS         byte     `yaml:"qos" validate:"max=2"`
}

// WebSocketConfig configures the WebSocket listener.
type WebSocketConfig struct {
	Address string `yaml:"address" validate:"required,hostname_port"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
	// AllowedOrigins lists the Origin headers accepted besides same origin
	// requests. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DefaultWebSocketPath is the path the WebSocket transport is served on.
const DefaultWebSocketPath = "/ws"

// URLPath returns Path, defaulting to DefaultWebSocketPath.
func (c *WebSocketConfig) URLPath() string {
	if c.Path == "" {
		return DefaultWebSocketPath
	}
	return c.Path
}

// ServerConfig is the configuration of square-server.
type ServerConfig struct {
	Name           string        `yaml:"name"`
	GRPC           GRPCConfig    `yaml:"grpc"`
	DebugAddr      string        `yaml:"debugAddr" validate:"omitempty,hostname_port"`
	Workers        int           `yaml:"workers" validate:"min=0"`
	HandlerTimeout Duration      `yaml:"handlerTimeout"`
	LogResponse    bool          `yaml:"logResponse"`
	Limiter        LimiterConfig `yaml:"limiter"`

	// MQTT enables the MQTT transport next to gRPC.
	MQTT *MQTTConfig `yaml:"mqtt" validate:"omitempty"`
	// WebSocket enables the WebSocket transport next to gRPC.
	WebSocket *WebSocketConfig `yaml:"websocket" validate:"omitempty"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ClientConfig is the configuration of square-client.
type ClientConfig struct {
	// Transport selects how the call is made, "grpc", "mqtt" or "websocket".
	Transport     string   `yaml:"transport" validate:"oneof=grpc mqtt websocket"`
	ServerAddress string   `yaml:"serverAddress" validate:"omitempty,hostname_port"`
	Timeout       Duration `yaml:"timeout"`
	Compressor    string   `yaml:"compressor" validate:"omitempty,oneof=gzip br deflate"`
	Number        float64  `yaml:"number"`
	// WebSocketURL is dialed by the websocket transport, e.g. ws://localhost:50053/ws.
	WebSocketURL string `yaml:"websocketURL" validate:"omitempty,url"`

	MQTT      *MQTTConfig      `yaml:"mqtt" validate:"omitempty"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		GRPC: GRPCConfig{
			Address: DefaultAddress,
		},
		HandlerTimeout: Duration{5 * time.Second},
		Limiter: LimiterConfig{
			Interval: Duration{time.Millisecond},
			Burst:    1000,
			Mode:     "reject",
		},
		Telemetry: telemetry.Config{
			ServiceName: "square-server",
		},
	}
}

// DefaultClientConfig returns the configuration used when no file is given.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport:     "grpc",
		ServerAddress: DefaultAddress,
		Timeout:       Duration{10 * time.Second},
		Number:        10.2,
		Telemetry: telemetry.Config{
			ServiceName: "square-client",
		},
	}
}

var validate = validator.New()

// Validate checks cfg for values the server cannot start with.
func (cfg *ServerConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid server config")
	}
	if cfg.HandlerTimeout.Duration < 0 {
		return errors.Newf("invalid server config: negative handlerTimeout %s", cfg.HandlerTimeout)
	}
	if cfg.Limiter.Interval.Duration <= 0 {
		return errors.Newf("invalid server config: limiter interval must be positive, got %s", cfg.Limiter.Interval)
	}
	return nil
}

// Validate checks cfg for values the client cannot run with.
func (cfg *ClientConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid client config")
	}
	if cfg.Transport == "grpc" && cfg.ServerAddress == "" {
		return errors.New("invalid client config: serverAddress is required for the grpc transport")
	}
	if cfg.Transport == "mqtt" && cfg.MQTT == nil {
		return errors.New("invalid client config: mqtt is required for the mqtt transport")
	}
	if cfg.Transport == "websocket" && cfg.WebSocketURL == "" {
		return errors.New("invalid client config: websocketURL is required for the websocket transport")
	}
	if cfg.Timeout.Duration <= 0 {
		return errors.Newf("invalid client config: timeout must be positive, got %s", cfg.Timeout)
	}
	return nil
}

// LoadServerConfig reads path over the defaults. An empty path yields the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := load(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfig reads path over the defaults. An empty path yields the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func load(path string, out interface{}) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// An empty file keeps the defaults.
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "decode config %s", path)
	}
	return nil
}
