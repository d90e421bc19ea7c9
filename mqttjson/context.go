package mqttjson

import (
	"context"

	"github.com/go-playground/validator/v10"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/envelope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// mqttContext is the MQTT half of a dispatch context.
type mqttContext struct {
	req       *request
	service   *Server
	validator *validator.Validate
	ctx       context.Context
}

// newMQTTContext extracts the caller's trace context from the request
// metadata and wraps the result for the core server.
func newMQTTContext(req *request, service *Server) *srpc.RequestContext {
	ctx := context.Background()
	if req.Metadata != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(req.Metadata))
	}
	return srpc.NewRequestContext(ctx, &mqttContext{
		req:       req,
		service:   service,
		validator: service.validator,
		ctx:       ctx,
	})
}

func (c *mqttContext) ID() *srpc.ID {
	return &srpc.ID{Num: c.req.ID}
}

// ReplyDesc returns the reply topic.
func (c *mqttContext) ReplyDesc() string {
	return c.req.ReplyTopic()
}

func (c *mqttContext) Method() string {
	return c.req.Method
}

// Bind decodes the request params into request. Plain structs are checked
// against their validate tags afterwards.
func (c *mqttContext) Bind(request interface{}) error {
	return envelope.Bind(c.validator, c.req.Params, request)
}

// Reply publishes res on the reply topic. A failed publish is logged, the
// reply still counts as sent.
func (c *mqttContext) Reply(res *srpc.Response) bool {
	var out *response
	if res.Error != nil {
		out = c.req.MakeErrResponse(res.Status, res.Error)
	} else {
		out = c.req.MakeOKResponse(res.Result)
	}

	out.Metadata = make(map[string]string)
	otel.GetTextMapPropagator().Inject(c.ctx, propagation.MapCarrier(out.Metadata))
	if len(out.Metadata) == 0 {
		out.Metadata = nil
	}

	if err := c.service.reply(out); err != nil {
		c.service.log.Errorf("Reply to %s %v", out.Topic, err)
	}
	return true
}
