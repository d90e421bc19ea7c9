package mqttjson

import (
	"context"
	"encoding/json"
	"io"
	"net/rpc"
	"sync"

	"github.com/xizhibei/go-square-rpc/envelope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type rpcClientCodec struct {
	dec *json.Decoder
	enc *json.Encoder
	c   io.ReadWriteCloser
	ctx context.Context

	encoding string

	req  Request
	resp Response

	mutex   sync.Mutex
	pending map[uint64]string
}

// newClientCodec returns a net/rpc client codec speaking the JSON envelopes on conn.
func newClientCodec(conn io.ReadWriteCloser) *rpcClientCodec {
	return &rpcClientCodec{
		dec:     json.NewDecoder(conn),
		enc:     json.NewEncoder(conn),
		c:       conn,
		pending: make(map[uint64]string),
	}
}

// SetEncoding sets the compression applied to request params.
func (c *rpcClientCodec) SetEncoding(encoding string) {
	c.encoding = encoding
}

// SetContext sets the context whose trace is propagated with each request.
func (c *rpcClientCodec) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// WriteRequest encodes param as the request params. net/rpc serializes
// calls to WriteRequest.
func (c *rpcClientCodec) WriteRequest(r *rpc.Request, param interface{}) error {
	paramsBytes, err := envelope.MarshalPayload(param)
	if err != nil {
		return err
	}
	params, err := envelope.PackBody(c.encoding, paramsBytes)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	c.pending[r.Seq] = r.ServiceMethod
	c.mutex.Unlock()
	c.req.Method = r.ServiceMethod
	c.req.Encoding = c.encoding
	c.req.Params = params
	c.req.ID = r.Seq
	c.req.Metadata = nil

	if c.ctx != nil {
		metadata := make(map[string]string)
		otel.GetTextMapPropagator().Inject(c.ctx, propagation.MapCarrier(metadata))
		if len(metadata) > 0 {
			c.req.Metadata = metadata
		}
	}

	return c.enc.Encode(&c.req)
}

// ReadResponseHeader decodes the next response. A non 200 status becomes
// the call error, formatted as "status <code>: <message>".
func (c *rpcClientCodec) ReadResponseHeader(r *rpc.Response) error {
	c.resp = Response{}
	if err := c.dec.Decode(&c.resp); err != nil {
		return err
	}

	if c.ctx != nil && c.resp.Metadata != nil {
		c.ctx = otel.GetTextMapPropagator().Extract(c.ctx, propagation.MapCarrier(c.resp.Metadata))
	}

	c.mutex.Lock()
	r.ServiceMethod = c.pending[c.resp.ID]
	delete(c.pending, c.resp.ID)
	c.mutex.Unlock()

	r.Error = ""
	r.Seq = c.resp.ID
	if c.resp.Data == nil {
		r.Error = "unspecified error"
	}
	if err := c.resp.Err(); err != nil {
		r.Error = err.Error()
	}
	return nil
}

// ReadResponseBody decodes the response data into x. A nil x discards it.
func (c *rpcClientCodec) ReadResponseBody(x interface{}) error {
	if x == nil {
		return nil
	}
	return c.resp.Result(x)
}

func (c *rpcClientCodec) Close() error {
	return c.c.Close()
}
