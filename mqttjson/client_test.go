package mqttjson_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
	mock_mqttadapter "github.com/xizhibei/go-square-rpc/mqttadapter/mock"
	"github.com/xizhibei/go-square-rpc/mqttjson"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"go.uber.org/mock/gomock"
)

type MQTTJsonClientTestSuite struct {
	suite.Suite
	client     *mqttjson.Client
	mockCtrl   *gomock.Controller
	mqttClient *mock_mqttadapter.MockMQTTClientAdapter
}

func (suite *MQTTJsonClientTestSuite) SetupTest() {
	suite.mockCtrl = gomock.NewController(suite.T())
	suite.mqttClient = mock_mqttadapter.NewMockMQTTClientAdapter(suite.mockCtrl)
	suite.mqttClient.EXPECT().
		EnsureConnected()
	suite.client = mqttjson.NewClient(suite.mqttClient, "square")
}

// serve answers every published request through respond, delivering the
// response on the subscribed topic.
func (suite *MQTTJsonClientTestSuite) serve(respond func(req mqttjson.Request) mqttjson.Response) {
	var onMessage mqttadapter.MessageCallback
	var responseTopic string

	suite.mqttClient.EXPECT().
		SubscribeWait(gomock.Any(), gomock.Any(), byte(srpc.DefaultQoS), gomock.Any()).
		DoAndReturn(func(_ context.Context, topic string, _ byte, cb mqttadapter.MessageCallback) error {
			suite.True(strings.HasPrefix(topic, "square/server-1/response/"))
			responseTopic = topic
			onMessage = cb
			return nil
		})

	suite.mqttClient.EXPECT().
		PublishBytes(gomock.Any(), gomock.Any(), byte(srpc.DefaultQoS), false, gomock.Any()).
		Do(func(_ context.Context, topic string, _ byte, _ bool, data []byte) {
			suite.Equal(strings.Replace(responseTopic, "/response/", "/request/", 1), topic)

			var req mqttjson.Request
			suite.NoError(json.Unmarshal(data, &req))

			resBytes, err := json.Marshal(respond(req))
			suite.NoError(err)
			go onMessage(suite.mqttClient, NewMockMessage(suite.mockCtrl, resBytes, responseTopic, false))
		})

	suite.mqttClient.EXPECT().
		Unsubscribe(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, topic string) {
			suite.Equal(responseTopic, topic)
		})
}

func (suite *MQTTJsonClientTestSuite) TestSquare() {
	suite.serve(func(req mqttjson.Request) mqttjson.Response {
		suite.Equal(square.Method, req.Method)
		suite.JSONEq(`{"number":10.2}`, string(req.Params))
		return mqttjson.Response{
			ID:     req.ID,
			Method: req.Method,
			Status: srpc.RPCStatusOK,
			Data:   json.RawMessage(`{"number":104.03999999999999}`),
		}
	})

	n, err := suite.client.Square(context.Background(), "server-1", 10.2)
	suite.Require().NoError(err)
	suite.Equal(104.03999999999999, n)
}

func (suite *MQTTJsonClientTestSuite) TestSquareInfinity() {
	suite.serve(func(req mqttjson.Request) mqttjson.Response {
		return mqttjson.Response{
			ID:     req.ID,
			Method: req.Method,
			Status: srpc.RPCStatusOK,
			Data:   json.RawMessage(`{"number":"Infinity"}`),
		}
	})

	n, err := suite.client.Square(context.Background(), "server-1", 1e200)
	suite.Require().NoError(err)
	suite.True(math.IsInf(n, 1))
}

func (suite *MQTTJsonClientTestSuite) TestSquareGzip() {
	suite.Require().NoError(suite.client.SetEncoding("gzip"))
	suite.serve(func(req mqttjson.Request) mqttjson.Response {
		suite.Equal("gzip", req.Encoding)
		suite.JSONEq(`{"number":4}`, unpackBody(suite.T(), compressor.ContentEncodingGzip, req.Params))
		return mqttjson.Response{
			ID:       req.ID,
			Method:   req.Method,
			Status:   srpc.RPCStatusOK,
			Encoding: "gzip",
			Data:     packBody(suite.T(), compressor.ContentEncodingGzip, `{"number":16}`),
		}
	})

	n, err := suite.client.Square(context.Background(), "server-1", 4)
	suite.Require().NoError(err)
	suite.Equal(float64(16), n)
}

func (suite *MQTTJsonClientTestSuite) TestSetEncodingUnknown() {
	suite.ErrorIs(suite.client.SetEncoding("zstd"), compressor.ErrUnknownContentEncoding)
	suite.NoError(suite.client.SetEncoding("identity"))
}

func (suite *MQTTJsonClientTestSuite) TestCallError() {
	suite.serve(func(req mqttjson.Request) mqttjson.Response {
		return mqttjson.Response{
			ID:     req.ID,
			Method: req.Method,
			Status: srpc.RPCStatusNotFound,
			Data:   json.RawMessage(`{"message":"[SRPC] unknown method"}`),
		}
	})

	reply := map[string]interface{}{}
	err := suite.client.Call(context.Background(), "server-1", "cube", map[string]float64{"number": 2}, &reply)
	suite.EqualError(err, "status 404: [SRPC] unknown method")
}

func (suite *MQTTJsonClientTestSuite) TestCallTimeout() {
	suite.mqttClient.EXPECT().
		SubscribeWait(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	suite.mqttClient.EXPECT().
		PublishBytes(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	suite.mqttClient.EXPECT().
		Unsubscribe(gomock.Any(), gomock.Any())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := suite.client.Square(ctx, "server-1", 2)
	suite.ErrorIs(err, context.DeadlineExceeded)
}

func (suite *MQTTJsonClientTestSuite) TestSubscribeFailed() {
	suite.mqttClient.EXPECT().
		SubscribeWait(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("not connected"))

	_, err := suite.client.Square(context.Background(), "server-1", 2)
	suite.EqualError(err, "not connected")
}

func (suite *MQTTJsonClientTestSuite) TestTelemetry() {
	tt := telemetry.NewTestTelemetry(suite.T())
	suite.client.SetTelemetry(tt.Telemetry())

	suite.mqttClient.EXPECT().
		SubscribeWait(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("not connected"))

	_, err := suite.client.Square(context.Background(), "server-1", 2)
	suite.Error(err)

	spans := tt.Spans()
	suite.Require().Len(spans, 1)
	suite.Equal("SRPC.Client.Call square", spans[0].Name)
	suite.NoError(tt.Shutdown(context.Background()))
}

func (suite *MQTTJsonClientTestSuite) TestClose() {
	suite.mqttClient.EXPECT().IsConnected().Return(false)
	suite.False(suite.client.IsConnected())

	suite.mqttClient.EXPECT().Disconnect()
	suite.NoError(suite.client.Close())
}

func TestMQTTJsonClient(t *testing.T) {
	suite.Run(t, new(MQTTJsonClientTestSuite))
}
