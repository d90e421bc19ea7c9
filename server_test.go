package squarerpc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	srpc "github.com/xizhibei/go-square-rpc"
	mock_squarerpc "github.com/xizhibei/go-square-rpc/mock"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type ServerTestSuite struct {
	suite.Suite
	mockCtrl *gomock.Controller
	server   *srpc.Server
}

func (suite *ServerTestSuite) SetupSuite() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

func (suite *ServerTestSuite) SetupTest() {
	suite.mockCtrl = gomock.NewController(suite.T())
	suite.server = srpc.NewServer(
		srpc.WithServerName("test"),
		srpc.WithWorkerNum(4),
		srpc.WithLogResponse(true),
	)
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.NoError(suite.server.Close())
}

// newChild returns a mocked transport half that records the single reply it gets.
func (suite *ServerTestSuite) newChild(method string) (*mock_squarerpc.MockChildContext, chan *srpc.Response) {
	replies := make(chan *srpc.Response, 2)
	child := mock_squarerpc.NewMockChildContext(suite.mockCtrl)
	child.EXPECT().Method().Return(method).AnyTimes()
	child.EXPECT().ID().Return(&srpc.ID{Num: 1}).AnyTimes()
	child.EXPECT().ReplyDesc().Return("test").AnyTimes()
	child.EXPECT().
		Reply(gomock.Any()).
		DoAndReturn(func(res *srpc.Response) bool {
			replies <- res
			return true
		}).
		Times(1)
	return child, replies
}

func (suite *ServerTestSuite) TestCallOK() {
	suite.server.Register("echo", &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			var n int
			suite.NoError(c.Bind(&n))
			c.ReplyOK(n * 2)
		},
	})

	child, replies := suite.newChild("echo")
	child.EXPECT().
		Bind(gomock.Any()).
		DoAndReturn(func(v interface{}) error {
			*(v.(*int)) = 21
			return nil
		})

	c := srpc.NewRequestContext(context.Background(), child)
	suite.server.Call(c)

	res := <-replies
	suite.Equal(srpc.RPCStatusOK, res.Status)
	suite.Equal(42, res.Result)
	suite.NoError(res.Error)
	suite.Same(res, c.GetResponse())
}

func (suite *ServerTestSuite) TestCallError() {
	suite.server.Register("fail", &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			c.ReplyError(srpc.RPCStatusClientError, errors.New("bad input"))
		},
	})

	child, replies := suite.newChild("fail")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))

	res := <-replies
	suite.Equal(srpc.RPCStatusClientError, res.Status)
	suite.EqualError(res.Error, "bad input")
}

func (suite *ServerTestSuite) TestCallUnknownMethod() {
	child, replies := suite.newChild("missing")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))

	res := <-replies
	suite.Equal(srpc.RPCStatusNotFound, res.Status)
	suite.True(errors.Is(res.Error, srpc.ErrUnknownMethod))
}

func (suite *ServerTestSuite) TestCallNoReply() {
	suite.server.Register("silent", &srpc.Handler{
		Timeout: time.Second,
		Method:  func(c srpc.Context) {},
	})

	child, replies := suite.newChild("silent")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))

	res := <-replies
	suite.Equal(srpc.RPCStatusServerError, res.Status)
	suite.True(errors.Is(res.Error, srpc.ErrNoReply))
}

func (suite *ServerTestSuite) TestCallPanic() {
	suite.server.Register("panic", &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			panic("boom")
		},
	})

	child, replies := suite.newChild("panic")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))

	res := <-replies
	suite.Equal(srpc.RPCStatusServerError, res.Status)
	suite.Contains(res.Error.Error(), "panic in method panic")
}

func (suite *ServerTestSuite) TestCallTimeout() {
	release := make(chan struct{})
	defer close(release)

	suite.server.Register("slow", &srpc.Handler{
		Timeout: 50 * time.Millisecond,
		Method: func(c srpc.Context) {
			<-release
			c.ReplyOK("late")
		},
	})

	child, replies := suite.newChild("slow")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))

	res := <-replies
	suite.Equal(srpc.RPCStatusRequestTimeout, res.Status)
	suite.True(errors.Is(res.Error, srpc.ErrTimeout))
}

func (suite *ServerTestSuite) TestReplyOnce() {
	child, replies := suite.newChild("twice")
	c := srpc.NewRequestContext(context.Background(), child)

	suite.True(c.ReplyOK(1))
	suite.False(c.ReplyOK(2))
	suite.False(c.ReplyError(srpc.RPCStatusServerError, srpc.ErrNoReply))

	res := <-replies
	suite.Equal(1, res.Result)
}

func (suite *ServerTestSuite) TestMethods() {
	hdl := &srpc.Handler{Method: func(c srpc.Context) {}}
	suite.server.Register("b", hdl)
	suite.server.Register("a", hdl)
	suite.server.Register("a", hdl)

	suite.Equal([]string{"a", "b"}, suite.server.Methods())
	suite.Equal("test", suite.server.Name())
}

func (suite *ServerTestSuite) TestRegisterMetrics() {
	responseTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "srpc_test_response_time_seconds",
	}, []string{"method", "name", "status"})
	errorCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "srpc_test_errors",
	}, []string{"method", "name", "status", "message"})

	suite.server.RegisterMetrics(responseTime, errorCount)
	suite.server.Register("ok", &srpc.Handler{
		Timeout: time.Second,
		Method:  func(c srpc.Context) { c.ReplyOK(nil) },
	})

	child, replies := suite.newChild("ok")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))
	<-replies

	child, replies = suite.newChild("missing")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))
	<-replies

	suite.Equal(2, testutil.CollectAndCount(responseTime))
	suite.Equal(1, testutil.CollectAndCount(errorCount))
}

func (suite *ServerTestSuite) TestSetTelemetry() {
	testTel := telemetry.NewTestTelemetry(suite.T())
	defer testTel.Shutdown(context.Background())

	suite.server.SetTelemetry(testTel.Telemetry())
	suite.server.Register("ok", &srpc.Handler{
		Timeout: time.Second,
		Method:  func(c srpc.Context) { c.ReplyOK(nil) },
	})

	child, replies := suite.newChild("ok")
	suite.server.Call(srpc.NewRequestContext(context.Background(), child))
	<-replies

	rm, err := testTel.Collect(context.Background())
	suite.Require().NoError(err)
	_, ok := telemetry.FindMetric(rm, "request_duration")
	suite.True(ok)
}

func (suite *ServerTestSuite) TestConcurrentCalls() {
	suite.server.Register("id", &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			c.ReplyOK(c.ID().Num)
		},
	})

	var wg sync.WaitGroup
	for i := uint64(0); i < 32; i++ {
		wg.Add(1)
		go func(i uint64) {
			defer wg.Done()

			replies := make(chan *srpc.Response, 1)
			child := mock_squarerpc.NewMockChildContext(suite.mockCtrl)
			child.EXPECT().Method().Return("id").AnyTimes()
			child.EXPECT().ID().Return(&srpc.ID{Num: i}).AnyTimes()
			child.EXPECT().ReplyDesc().Return("test").AnyTimes()
			child.EXPECT().Reply(gomock.Any()).DoAndReturn(func(res *srpc.Response) bool {
				replies <- res
				return true
			})

			suite.server.Call(srpc.NewRequestContext(context.Background(), child))
			res := <-replies
			suite.Equal(i, res.Result)
		}(i)
	}
	wg.Wait()
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestLimiterReject(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := srpc.NewServer(
		srpc.WithLimiter(time.Hour, 1),
		srpc.WithLimiterReject(),
	)
	defer server.Close()
	server.Register("ok", &srpc.Handler{
		Timeout: time.Second,
		Method:  func(c srpc.Context) { c.ReplyOK(nil) },
	})

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		child := mock_squarerpc.NewMockChildContext(ctrl)
		child.EXPECT().Method().Return("ok").AnyTimes()
		child.EXPECT().ReplyDesc().Return("test").AnyTimes()
		child.EXPECT().Reply(gomock.Any()).DoAndReturn(func(res *srpc.Response) bool {
			statuses = append(statuses, res.Status)
			return true
		})
		server.Call(srpc.NewRequestContext(context.Background(), child))
	}

	if statuses[0] != srpc.RPCStatusOK || statuses[1] != srpc.RPCStatusTooManyRequests {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestLimiterWait(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := srpc.NewServer(
		srpc.WithLimiter(time.Hour, 1),
		srpc.WithLimiterWait(),
	)
	defer server.Close()
	server.Register("ok", &srpc.Handler{
		Timeout: time.Second,
		Method:  func(c srpc.Context) { c.ReplyOK(nil) },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		child := mock_squarerpc.NewMockChildContext(ctrl)
		child.EXPECT().Method().Return("ok").AnyTimes()
		child.EXPECT().ReplyDesc().Return("test").AnyTimes()
		child.EXPECT().Reply(gomock.Any()).DoAndReturn(func(res *srpc.Response) bool {
			statuses = append(statuses, res.Status)
			return true
		})
		server.Call(srpc.NewRequestContext(ctx, child))
	}

	if statuses[0] != srpc.RPCStatusOK || statuses[1] != srpc.RPCStatusRequestTimeout {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestIDString(t *testing.T) {
	if got := (&srpc.ID{Num: 7}).String(); got != "7" {
		t.Fatalf("got %q", got)
	}
	if got := (&srpc.ID{Num: 7, Str: "abc"}).String(); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
