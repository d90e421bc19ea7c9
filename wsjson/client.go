package wsjson

import (
	"context"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/envelope"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/squarepb"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by calls on a closed or broken connection.
var ErrClientClosed = errors.New("[SRPC] websocket client closed")

// Client multiplexes calls over one WebSocket connection. It is safe for
// concurrent use.
type Client struct {
	ws        *websocket.Conn
	log       *zap.SugaredLogger
	telemetry *telemetry.Telemetry
	encoding  string

	writeMu sync.Mutex
	seq     atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *envelope.Response

	done    chan struct{}
	readErr error
}

// Dial connects to a Server at url, e.g. ws://localhost:9090/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}

	tel, _ := telemetry.NewNoop()
	c := &Client{
		ws:        ws,
		log:       zap.S().With("module", "srpc.wsjsonclient"),
		telemetry: tel,
		pending:   make(map[uint64]chan *envelope.Response),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		res := &envelope.Response{}
		if err := c.ws.ReadJSON(res); err != nil {
			c.readErr = err
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.pendingMu.Unlock()

		if !ok {
			c.log.Warnf("Response for unknown call %d, method %s", res.ID, res.Method)
			continue
		}
		ch <- res
	}
}

// SetEncoding compresses request params, and so the responses, with the
// named encoding. Empty or "identity" disables compression.
func (c *Client) SetEncoding(name string) error {
	if _, err := compressor.ParseContentEncoding(name); err != nil {
		return err
	}
	c.encoding = name
	return nil
}

// SetTelemetry sets the telemetry used for client spans.
func (c *Client) SetTelemetry(tel *telemetry.Telemetry) {
	c.telemetry = tel
}

// Call invokes method and decodes the result into reply. It returns when the
// response arrives, ctx is done or the connection breaks.
func (c *Client) Call(ctx context.Context, method string, args interface{}, reply interface{}) error {
	ctx, span := c.telemetry.StartSpan(ctx, "SRPC.WSClient.Call "+method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", method))

	err := c.call(ctx, method, args, reply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, args interface{}, reply interface{}) error {
	raw, err := envelope.MarshalPayload(args)
	if err != nil {
		return err
	}
	params, err := envelope.PackBody(c.encoding, raw)
	if err != nil {
		return err
	}

	req := &envelope.Request{
		ID:       c.seq.Inc(),
		Method:   method,
		Encoding: c.encoding,
		Params:   params,
	}
	metadata := make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(metadata))
	if len(metadata) > 0 {
		req.Metadata = metadata
	}

	ch := make(chan *envelope.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return errors.Wrap(err, "write request")
	}

	select {
	case res := <-ch:
		if err := res.Err(); err != nil {
			return err
		}
		if reply == nil {
			return nil
		}
		return res.Result(reply)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		if c.readErr != nil {
			return errors.Wrapf(ErrClientClosed, "%v", c.readErr)
		}
		return ErrClientClosed
	}
}

// Square returns x squared.
func (c *Client) Square(ctx context.Context, x float64) (float64, error) {
	res := &squarepb.SquareResponse{}
	if err := c.Call(ctx, square.Method, &squarepb.SquareRequest{Number: x}, res); err != nil {
		return 0, err
	}
	return res.GetNumber(), nil
}

// Close sends a normal closure frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	closeErr := c.ws.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return closeErr
}
