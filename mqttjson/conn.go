package mqttjson

import (
	"bytes"
	"context"
	"io"
	"net/rpc"
	"sync"

	"github.com/xizhibei/go-square-rpc/mqttadapter"
	"go.uber.org/zap"
)

// rpcConn is an io.ReadWriteCloser over a pair of MQTT topics. Writes are
// published to the request topic, reads drain the messages of the response
// topic in arrival order.
type rpcConn struct {
	requestTopic  string
	responseTopic string
	c             mqttadapter.MQTTClientAdapter
	qos           byte

	log *zap.SugaredLogger

	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// Only touched by the single reader goroutine of rpc.Client.
	reader *bytes.Reader
}

func newRPCConn(requestTopic, responseTopic string, c mqttadapter.MQTTClientAdapter, qos byte) *rpcConn {
	return &rpcConn{
		requestTopic:  requestTopic,
		responseTopic: responseTopic,
		c:             c,
		qos:           qos,
		msgs:          make(chan []byte, 1),
		closed:        make(chan struct{}),
		log:           zap.S().With("module", "srpc.mqttjsonclient.conn"),
	}
}

func (c *rpcConn) onMessage(_ mqttadapter.MQTTClientAdapter, m mqttadapter.Message) {
	c.log.Debugf("Receive data from %s len=%d", m.Topic(), len(m.Payload()))
	select {
	case c.msgs <- m.Payload():
	case <-c.closed:
	}
}

// Read blocks until a response message arrives or the connection is closed,
// in which case it returns io.EOF.
func (c *rpcConn) Read(data []byte) (int, error) {
	for c.reader == nil || c.reader.Len() == 0 {
		select {
		case payload := <-c.msgs:
			c.reader = bytes.NewReader(payload)
		case <-c.closed:
			return 0, io.EOF
		}
	}
	return c.reader.Read(data)
}

// Write publishes data to the request topic.
func (c *rpcConn) Write(data []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	c.log.Debugf("Send data to %s len=%d", c.requestTopic, len(data))
	c.c.PublishBytes(context.TODO(), c.requestTopic, c.qos, false, data)
	return len(data), nil
}

// Close unsubscribes from the response topic. It is safe to call more than once.
func (c *rpcConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.c.Unsubscribe(context.Background(), c.responseTopic)
	})
	return nil
}

// Dial subscribes to replyTopic, waiting for the broker to acknowledge so no
// response is missed, and returns an RPC client publishing to reqTopic.
// ctx bounds the subscription and is propagated in the request metadata.
// encoding compresses the params, see Request.
func Dial(ctx context.Context, reqTopic, replyTopic string, c mqttadapter.MQTTClientAdapter, qos byte, encoding string) (*rpc.Client, error) {
	conn := newRPCConn(reqTopic, replyTopic, c, qos)
	if err := c.SubscribeWait(ctx, replyTopic, qos, conn.onMessage); err != nil {
		return nil, err
	}

	codec := newClientCodec(conn)
	codec.SetContext(ctx)
	codec.SetEncoding(encoding)
	return rpc.NewClientWithCodec(codec), nil
}
