package mqttjson_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
	mock_mqttadapter "github.com/xizhibei/go-square-rpc/mqttadapter/mock"
	mock_mqtt "github.com/xizhibei/go-square-rpc/mqttadapter/mock/mqtt"
	"github.com/xizhibei/go-square-rpc/mqttjson"
	"github.com/xizhibei/go-square-rpc/square"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func NewMockMessage(ctrl *gomock.Controller, payload []byte, topic string, retained bool) mqttadapter.Message {
	m := mock_mqtt.NewMockMessage(ctrl)
	m.EXPECT().Payload().Return(payload).AnyTimes()
	m.EXPECT().Topic().Return(topic).AnyTimes()
	m.EXPECT().Retained().Return(retained).AnyTimes()
	return m
}

var testCompressors = compressor.NewCompressorManager()

func packBody(t *testing.T, enc compressor.ContentEncoding, body string) json.RawMessage {
	data, err := testCompressors.Compress(enc, []byte(body))
	require.NoError(t, err)
	b, err := json.Marshal(base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	return b
}

func unpackBody(t *testing.T, enc compressor.ContentEncoding, body json.RawMessage) string {
	var s string
	require.NoError(t, json.Unmarshal(body, &s))
	data, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	data, err = testCompressors.Decompress(enc, data)
	require.NoError(t, err)
	return string(data)
}

type published struct {
	topic string
	res   mqttjson.Response
}

type EchoBody struct {
	Name string `json:"name" validate:"required"`
}

type MQTTJsonServerTestSuite struct {
	suite.Suite
	mockCtrl   *gomock.Controller
	mqttClient *mock_mqttadapter.MockMQTTClientAdapter
	core       *srpc.Server
	server     *mqttjson.Server

	onMessage mqttadapter.MessageCallback
	published chan published
}

func (suite *MQTTJsonServerTestSuite) SetupSuite() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

func (suite *MQTTJsonServerTestSuite) SetupTest() {
	suite.mockCtrl = gomock.NewController(suite.T())
	suite.mqttClient = mock_mqttadapter.NewMockMQTTClientAdapter(suite.mockCtrl)
	suite.published = make(chan published, 16)

	suite.core = srpc.NewServer(srpc.WithWorkerNum(4))
	square.Register(suite.core, time.Second)

	suite.mqttClient.EXPECT().
		EnsureConnected()
	suite.mqttClient.EXPECT().
		OnConnect(gomock.Any()).
		DoAndReturn(func(cb mqttadapter.OnConnectCallback) int {
			cb()
			return 3
		})
	suite.mqttClient.EXPECT().
		Subscribe(gomock.Any(), "square/server-1/request/+", byte(1), gomock.Any()).
		Do(func(_ context.Context, _ string, _ byte, cb mqttadapter.MessageCallback) {
			suite.onMessage = cb
		})
	suite.mqttClient.EXPECT().
		PublishBytes(gomock.Any(), gomock.Any(), byte(1), false, gomock.Any()).
		Do(func(_ context.Context, topic string, _ byte, _ bool, data []byte) {
			var res mqttjson.Response
			suite.NoError(json.Unmarshal(data, &res))
			suite.published <- published{topic: topic, res: res}
		}).
		AnyTimes()

	suite.server = mqttjson.NewServer(suite.mqttClient, suite.core, "square", "server-1", mqttjson.WithQoS(1))
	suite.Require().NotNil(suite.onMessage)
}

func (suite *MQTTJsonServerTestSuite) TearDownTest() {
	suite.mqttClient.EXPECT().OffConnect(3)
	suite.mqttClient.EXPECT().Unsubscribe(gomock.Any(), "square/server-1/request/+")
	suite.mqttClient.EXPECT().Disconnect()

	suite.NoError(suite.server.Close())
	suite.NoError(suite.core.Close())
}

func (suite *MQTTJsonServerTestSuite) send(callID string, payload []byte, retained bool) published {
	topic := "square/server-1/request/" + callID
	suite.onMessage(suite.mqttClient, NewMockMessage(suite.mockCtrl, payload, topic, retained))

	select {
	case p := <-suite.published:
		suite.Equal("square/server-1/response/"+callID, p.topic)
		return p
	case <-time.After(5 * time.Second):
		suite.FailNow("no response published")
		return published{}
	}
}

func (suite *MQTTJsonServerTestSuite) call(callID string, id uint64, method string, params string) mqttjson.Response {
	req := mqttjson.Request{
		ID:     id,
		Method: method,
	}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	b, err := json.Marshal(req)
	suite.Require().NoError(err)

	p := suite.send(callID, b, false)
	suite.Equal(id, p.res.ID)
	suite.Equal(method, p.res.Method)
	return p.res
}

func (suite *MQTTJsonServerTestSuite) TestSquare() {
	res := suite.call("c1", 7, square.Method, `{"number":10.2}`)
	suite.Equal(srpc.RPCStatusOK, res.Status)

	var data struct {
		Number float64 `json:"number"`
	}
	suite.Require().NoError(json.Unmarshal(res.Data, &data))
	suite.Equal(104.03999999999999, data.Number)
}

func (suite *MQTTJsonServerTestSuite) TestSquareCompressed() {
	for _, enc := range []compressor.ContentEncoding{
		compressor.ContentEncodingGzip,
		compressor.ContentEncodingDeflate,
		compressor.ContentEncodingBrotli,
	} {
		req := mqttjson.Request{
			ID:       9,
			Method:   square.Method,
			Encoding: enc.String(),
			Params:   packBody(suite.T(), enc, `{"number":3}`),
		}
		b, err := json.Marshal(req)
		suite.Require().NoError(err)

		res := suite.send("c-"+enc.String(), b, false).res
		suite.Equal(srpc.RPCStatusOK, res.Status)
		suite.Equal(enc.String(), res.Encoding)
		suite.JSONEq(`{"number":9}`, unpackBody(suite.T(), enc, res.Data))
	}
}

func (suite *MQTTJsonServerTestSuite) TestUnknownEncoding() {
	b := []byte(`{"id":4,"method":"square","encoding":"zstd","params":"AAAA"}`)
	res := suite.send("c1", b, false).res
	suite.Equal(srpc.RPCStatusClientError, res.Status)
	suite.Equal(uint64(4), res.ID)
	suite.Empty(res.Encoding)
	suite.Contains(string(res.Data), "unknown content encoding")
}

func (suite *MQTTJsonServerTestSuite) TestEmptyParams() {
	res := suite.call("c2", 1, square.Method, "")
	suite.Equal(srpc.RPCStatusOK, res.Status)
	suite.JSONEq(`{"number":0}`, string(res.Data))
}

func (suite *MQTTJsonServerTestSuite) TestOverflow() {
	res := suite.call("c3", 2, square.Method, `{"number":1e200}`)
	suite.Equal(srpc.RPCStatusOK, res.Status)
	suite.JSONEq(`{"number":"Infinity"}`, string(res.Data))
}

func (suite *MQTTJsonServerTestSuite) TestBadParams() {
	res := suite.call("c4", 3, square.Method, `{"number":"ten"}`)
	suite.Equal(srpc.RPCStatusClientError, res.Status)
	suite.Contains(string(res.Data), "message")
}

func (suite *MQTTJsonServerTestSuite) TestUnknownMethod() {
	res := suite.call("c5", 4, "cube", `{"number":2}`)
	suite.Equal(srpc.RPCStatusNotFound, res.Status)
}

func (suite *MQTTJsonServerTestSuite) TestInvalidJSON() {
	p := suite.send("c6", []byte("not json"), false)
	suite.Equal(srpc.RPCStatusClientError, p.res.Status)
	suite.Equal(uint64(0), p.res.ID)
}

func (suite *MQTTJsonServerTestSuite) TestRetained() {
	p := suite.send("c7", []byte(`{"id":1,"method":"square"}`), true)
	suite.Equal(srpc.RPCStatusClientError, p.res.Status)
	suite.Contains(string(p.res.Data), "retained message is not allowed")
}

func (suite *MQTTJsonServerTestSuite) TestValidate() {
	suite.core.Register("echo", &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			var body EchoBody
			if err := c.Bind(&body); err != nil {
				c.ReplyError(srpc.RPCStatusClientError, err)
				return
			}
			c.ReplyOK(body)
		},
	})

	res := suite.call("c8", 5, "echo", `{"name":"sq"}`)
	suite.Equal(srpc.RPCStatusOK, res.Status)
	suite.JSONEq(`{"name":"sq"}`, string(res.Data))

	res = suite.call("c9", 6, "echo", `{}`)
	suite.Equal(srpc.RPCStatusClientError, res.Status)
	suite.Contains(string(res.Data), "required")
}

func (suite *MQTTJsonServerTestSuite) TestIsConnected() {
	suite.mqttClient.EXPECT().IsConnected().Return(true)
	suite.True(suite.server.IsConnected())
}

func TestMQTTJsonServer(t *testing.T) {
	suite.Run(t, new(MQTTJsonServerTestSuite))
}

func TestTopics(t *testing.T) {
	if got := mqttjson.RequestTopic("a/b", "s1"); got != "a/b/s1/request/+" {
		t.Fatalf("got %s", got)
	}
	req, res := mqttjson.CallTopics("a/b", "s1", "x")
	if req != "a/b/s1/request/x" || res != "a/b/s1/response/x" {
		t.Fatalf("got %s %s", req, res)
	}
}
