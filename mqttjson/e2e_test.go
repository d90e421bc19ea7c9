package mqttjson_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
	"github.com/xizhibei/go-square-rpc/mqttjson"
	"github.com/xizhibei/go-square-rpc/square"
	"go.uber.org/zap"
)

// MQTTJsonE2ETestSuite needs a broker, set SQUARE_MQTT_TEST_URI to run it.
type MQTTJsonE2ETestSuite struct {
	suite.Suite
	core    *srpc.Server
	service *mqttjson.Server
	client  *mqttjson.Client

	topicPrefix string
	serverID    string
}

func (suite *MQTTJsonE2ETestSuite) SetupSuite() {
	uri := os.Getenv("SQUARE_MQTT_TEST_URI")
	if uri == "" {
		suite.T().Skip("SQUARE_MQTT_TEST_URI is not set")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)

	clientID := uuid.NewString()
	suite.serverID = uuid.NewString()
	suite.topicPrefix = "test/square"
	if prefix := os.Getenv("SQUARE_MQTT_TEST_TOPIC_PREFIX"); prefix != "" {
		suite.topicPrefix = prefix
	}

	iotServer, err := mqttadapter.New(uri, clientID+"-server", mqttadapter.WithRetryInterval(time.Second))
	suite.Require().NoError(err)

	suite.core = srpc.NewServer(srpc.WithLimiter(time.Millisecond, 100))
	square.Register(suite.core, time.Second)
	suite.service = mqttjson.NewServer(iotServer, suite.core, suite.topicPrefix, suite.serverID)

	iotClient, err := mqttadapter.New(uri, clientID+"-client", mqttadapter.WithRetryInterval(time.Second))
	suite.Require().NoError(err)
	suite.client = mqttjson.NewClient(iotClient, suite.topicPrefix)

	suite.Require().Eventually(func() bool {
		return suite.service.IsConnected() && suite.client.IsConnected()
	}, 10*time.Second, 50*time.Millisecond)
	// Let the server subscription settle.
	time.Sleep(200 * time.Millisecond)
}

func (suite *MQTTJsonE2ETestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.Close()
	}
	if suite.service != nil {
		suite.service.Close()
		suite.core.Close()
	}
}

func (suite *MQTTJsonE2ETestSuite) TestSquare() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := suite.client.Square(ctx, suite.serverID, 10.2)
	suite.Require().NoError(err)
	suite.Equal(104.03999999999999, n)
}

func (suite *MQTTJsonE2ETestSuite) TestConcurrent() {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			n, err := suite.client.Square(ctx, suite.serverID, x)
			if suite.NoError(err) {
				suite.Equal(x*x, n)
			}
		}(float64(i) - 4.5)
	}
	wg.Wait()
}

func (suite *MQTTJsonE2ETestSuite) TestSquareBrotli() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	suite.Require().NoError(suite.client.SetEncoding("br"))
	defer suite.client.SetEncoding("")

	n, err := suite.client.Square(ctx, suite.serverID, -10.2)
	suite.Require().NoError(err)
	suite.InDelta(104.04, n, 1e-9)
}

func (suite *MQTTJsonE2ETestSuite) TestUnknownMethod() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reply map[string]interface{}
	err := suite.client.Call(ctx, suite.serverID, "cube", map[string]float64{"number": 2}, &reply)
	suite.Error(err)
	suite.Contains(err.Error(), "status 404")
}

func TestMQTTJsonE2E(t *testing.T) {
	suite.Run(t, new(MQTTJsonE2ETestSuite))
}
