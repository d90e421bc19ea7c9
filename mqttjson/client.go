package mqttjson

import (
	"context"
	"net/rpc"

	"github.com/google/uuid"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/squarepb"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Client calls servers reachable through an MQTT broker. Every call uses its
// own pair of topics, so a Client is safe for concurrent use.
type Client struct {
	mqttClient  mqttadapter.MQTTClientAdapter
	log         *zap.SugaredLogger
	telemetry   *telemetry.Telemetry
	topicPrefix string
	qos         byte
	encoding    string
}

// NewClient starts connecting client in the background.
func NewClient(client mqttadapter.MQTTClientAdapter, topicPrefix string) *Client {
	tel, _ := telemetry.NewNoop()

	s := Client{
		mqttClient:  client,
		topicPrefix: topicPrefix,
		telemetry:   tel,
		qos:         srpc.DefaultQoS,
		log:         zap.S().With("module", "srpc.mqttjsonclient"),
	}

	client.EnsureConnected()

	return &s
}

// OnConnect runs cb on every connect to the broker.
func (s *Client) OnConnect(cb func()) int {
	return s.mqttClient.OnConnect(cb)
}

func (s *Client) IsConnected() bool {
	return s.mqttClient.IsConnected()
}

func (s *Client) Close() error {
	s.mqttClient.Disconnect()
	return nil
}

func (s *Client) createRPCClient(ctx context.Context, serverID string) (*rpc.Client, error) {
	requestTopic, responseTopic := CallTopics(s.topicPrefix, serverID, uuid.NewString())
	return Dial(ctx, requestTopic, responseTopic, s.mqttClient, s.qos, s.encoding)
}

// Call invokes method on serverID and decodes the result into reply. It
// returns when the response arrives or ctx is done.
func (s *Client) Call(ctx context.Context, serverID, method string, args interface{}, reply interface{}) error {
	ctx, span := s.telemetry.StartSpan(ctx, "SRPC.Client.Call "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("srpc.server_id", serverID),
	)

	err := s.call(ctx, serverID, method, args, reply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Client) call(ctx context.Context, serverID, method string, args interface{}, reply interface{}) error {
	rpcClient, err := s.createRPCClient(ctx, serverID)
	if err != nil {
		return err
	}
	defer rpcClient.Close()

	call := rpcClient.Go(method, args, reply, make(chan *rpc.Call, 1))

	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Square returns x squared by serverID.
func (s *Client) Square(ctx context.Context, serverID string, x float64) (float64, error) {
	res := &squarepb.SquareResponse{}
	if err := s.Call(ctx, serverID, square.Method, &squarepb.SquareRequest{Number: x}, res); err != nil {
		return 0, err
	}
	return res.GetNumber(), nil
}

// SetQoS sets the QoS of requests and of the response subscription.
func (s *Client) SetQoS(qos byte) {
	s.qos = qos
}

// SetEncoding compresses request params, and so the responses, with the
// named encoding. Empty or "identity" disables compression.
func (s *Client) SetEncoding(name string) error {
	if _, err := compressor.ParseContentEncoding(name); err != nil {
		return err
	}
	s.encoding = name
	return nil
}

// SetTelemetry sets the telemetry used for client spans.
func (s *Client) SetTelemetry(tel *telemetry.Telemetry) {
	s.telemetry = tel
}
