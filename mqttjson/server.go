package mqttjson

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/envelope"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
	"go.uber.org/zap"
)

var (
	// ErrRetainedMessage is returned for requests published with the retain flag.
	ErrRetainedMessage = errors.New("[SRPC] retained message is not allowed, please set retained=false")
)

// Server dispatches requests arriving on the MQTT request topic to a core
// server. The core may be shared with other transports.
type Server struct {
	core      *srpc.Server
	iotClient mqttadapter.MQTTClientAdapter
	log       *zap.SugaredLogger
	validator *validator.Validate

	subscribeTopic string
	qos            byte
	connectIdx     int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithQoS sets the QoS of the request subscription and of the replies.
func WithQoS(qos byte) ServerOption {
	return func(s *Server) {
		s.qos = qos
	}
}

// WithValidator replaces the validator used by Bind for plain structs.
func WithValidator(v *validator.Validate) ServerOption {
	return func(s *Server) {
		s.validator = v
	}
}

// NewServer subscribes to the request topic of serverID on every connect and
// starts connecting client in the background.
func NewServer(client mqttadapter.MQTTClientAdapter, core *srpc.Server, topicPrefix, serverID string, options ...ServerOption) *Server {
	s := &Server{
		core:           core,
		iotClient:      client,
		subscribeTopic: RequestTopic(topicPrefix, serverID),
		qos:            srpc.DefaultQoS,
		log:            zap.S().With("module", "srpc.mqttjsonserver"),
	}
	for _, o := range options {
		o(s)
	}
	if s.validator == nil {
		s.validator = validator.New()
	}

	client.EnsureConnected()

	s.connectIdx = client.OnConnect(func() {
		s.initReceive()
	})
	return s
}

// Close stops receiving and disconnects the MQTT client. The core server is
// left running.
func (s *Server) Close() error {
	s.iotClient.OffConnect(s.connectIdx)
	s.iotClient.Unsubscribe(context.Background(), s.subscribeTopic)
	s.iotClient.Disconnect()
	return nil
}

type request struct {
	Topic string
	Request
}

// ReplyTopic returns the response topic paired with the request topic.
func (r *request) ReplyTopic() string {
	return replyTopic(r.Topic)
}

// MakeOKResponse creates a 200 response carrying x.
func (r *request) MakeOKResponse(x interface{}) *response {
	return &response{Topic: r.ReplyTopic(), Response: *r.OKResponse(x)}
}

// MakeErrResponse creates a response with status and {"message": err}.
func (r *request) MakeErrResponse(status int, err error) *response {
	return &response{Topic: r.ReplyTopic(), Response: *r.ErrResponse(status, err)}
}

type response struct {
	Topic string
	Response
}

func (s *Server) reply(res *response) error {
	data, err := json.Marshal(res.Response)
	if err != nil {
		return err
	}
	s.log.Debugf("Response to topic %s, method %s size %d", res.Topic, res.Method, len(data))
	s.iotClient.PublishBytes(context.TODO(), res.Topic, s.qos, false, data)

	return nil
}

func (s *Server) initReceive() {
	s.iotClient.Subscribe(context.TODO(), s.subscribeTopic, s.qos, s.onMessage)
}

func (s *Server) onMessage(_ mqttadapter.MQTTClientAdapter, m mqttadapter.Message) {
	req := &request{
		Topic: m.Topic(),
	}

	if m.Retained() {
		s.log.Warnf("Retained message on %s, ignore", m.Topic())
		_ = s.reply(req.MakeErrResponse(srpc.RPCStatusClientError, ErrRetainedMessage))
		return
	}

	if err := json.Unmarshal(m.Payload(), &req.Request); err != nil {
		s.log.Errorf("Parse json %v", err)
		_ = s.reply(req.MakeErrResponse(srpc.RPCStatusClientError, errors.Wrap(err, "parse request")))
		return
	}

	params, err := envelope.UnpackBody(req.Encoding, req.Params)
	if err != nil {
		s.log.Errorf("Unpack %s params %v", req.Encoding, err)
		_ = s.reply(req.MakeErrResponse(srpc.RPCStatusClientError, errors.Wrap(err, "unpack params")))
		return
	}
	req.Params = params

	s.log.Debugf("Request from topic %s, method %s", m.Topic(), req.Method)

	// The paho router delivers messages one at a time, the core bounds the
	// concurrency.
	go s.core.Call(newMQTTContext(req, s))
}

// IsConnected returns a boolean value indicating whether the service is connected to the MQTT broker.
func (s *Server) IsConnected() bool {
	return s.iotClient.IsConnected()
}
