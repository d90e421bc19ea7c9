package grpcclient

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/grpcserver"
	"github.com/xizhibei/go-square-rpc/square"
	"github.com/xizhibei/go-square-rpc/squarepb"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type ClientTestSuite struct {
	suite.Suite

	core   *srpc.Server
	server *grpcserver.Server
	lis    *bufconn.Listener
	client *Client
}

func (suite *ClientTestSuite) SetupTest() {
	suite.core = srpc.NewServer(srpc.WithWorkerNum(4))
	square.Register(suite.core, time.Second)
	suite.server = grpcserver.New(suite.core)

	suite.lis = bufconn.Listen(1 << 20)
	go suite.server.Serve(suite.lis)

	suite.client = suite.dial()
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.NoError(suite.client.Close())
	suite.server.Stop()
	suite.NoError(suite.core.Close())
}

func (suite *ClientTestSuite) dial(opts ...Option) *Client {
	opts = append([]Option{
		WithTimeout(5 * time.Second),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return suite.lis.DialContext(ctx)
		})),
	}, opts...)

	client, err := Dial("passthrough:///bufnet", opts...)
	suite.Require().NoError(err)
	return client
}

func (suite *ClientTestSuite) TestSquare() {
	n, err := suite.client.Square(context.Background(), 10.2)
	suite.Require().NoError(err)
	suite.Equal(104.03999999999999, n)

	n, err = suite.client.Square(context.Background(), -10.2)
	suite.Require().NoError(err)
	suite.InDelta(104.04, n, 1e-9)

	n, err = suite.client.Square(context.Background(), 1e200)
	suite.Require().NoError(err)
	suite.True(math.IsInf(n, 1))
}

func (suite *ClientTestSuite) TestIdempotent() {
	first, err := suite.client.Square(context.Background(), 7.25)
	suite.Require().NoError(err)
	second, err := suite.client.Square(context.Background(), 7.25)
	suite.Require().NoError(err)
	suite.Equal(first, second)
}

func (suite *ClientTestSuite) TestSquareAsync() {
	var calls atomic.Int32
	done := make(chan struct{})

	suite.client.SquareAsync(context.Background(), 10.2, func(res *squarepb.SquareResponse, err error) {
		defer close(done)
		calls.Inc()
		suite.NoError(err)
		if suite.NotNil(res) {
			suite.Equal(104.03999999999999, res.GetNumber())
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		suite.FailNow("callback not invoked")
	}

	// Give a duplicate delivery the chance to show up.
	time.Sleep(50 * time.Millisecond)
	suite.Equal(int32(1), calls.Load())
}

func (suite *ClientTestSuite) TestGo() {
	done := make(chan *Call, 16)
	for i := 0; i < 16; i++ {
		suite.client.Go(context.Background(), float64(i), done)
	}

	seen := make(map[float64]bool)
	for i := 0; i < 16; i++ {
		call := <-done
		suite.Require().NoError(call.Error)
		suite.Equal(call.Number*call.Number, call.Response.GetNumber())
		seen[call.Number] = true
	}
	suite.Len(seen, 16)

	call := <-suite.client.Go(context.Background(), 3, nil).Done
	suite.NoError(call.Error)
	suite.Equal(9.0, call.Response.GetNumber())

	suite.Panics(func() {
		suite.client.Go(context.Background(), 3, make(chan *Call))
	})
}

func (suite *ClientTestSuite) TestConcurrent() {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			n, err := suite.client.Square(context.Background(), x)
			if suite.NoError(err) {
				suite.Equal(x*x, n)
			}
		}(float64(i) + 0.25)
	}
	wg.Wait()
}

func (suite *ClientTestSuite) TestCompressor() {
	client := suite.dial(WithCompressor(compressor.BrotliName))
	defer client.Close()

	n, err := client.Square(context.Background(), 4)
	suite.Require().NoError(err)
	suite.Equal(16.0, n)
}

func (suite *ClientTestSuite) TestTimeout() {
	suite.core.Register(square.Method, &srpc.Handler{
		Timeout: time.Second,
		Method: func(c srpc.Context) {
			time.Sleep(200 * time.Millisecond)
			c.ReplyOK(&squarepb.SquareResponse{})
		},
	})

	client := suite.dial(WithTimeout(50 * time.Millisecond))
	defer client.Close()

	_, err := client.Square(context.Background(), 2)
	suite.Require().Error(err)
	suite.Equal(codes.DeadlineExceeded, status.Code(err))
	suite.Contains(err.Error(), "square.v1.SquareService.Square timed out")
}

func (suite *ClientTestSuite) TestCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.client.Square(ctx, 2)
	suite.Equal(codes.Canceled, status.Code(err))
}

func (suite *ClientTestSuite) TestMetrics() {
	reg := prometheus.NewRegistry()
	client := suite.dial(WithMetrics(reg))
	defer client.Close()

	_, err := client.Square(context.Background(), 2)
	suite.Require().NoError(err)

	inFlight := client.metrics.inFlightRPCs.With(prometheus.Labels{
		"service": "square.v1.SquareService",
		"method":  "Square",
	})
	suite.Equal(0.0, testutil.ToFloat64(inFlight))

	count, err := testutil.GatherAndCount(reg, "grpc_client_handled_total")
	suite.Require().NoError(err)
	suite.Equal(1, count)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestUnreachable(t *testing.T) {
	// Nothing listens on the discard port.
	client, err := Dial("127.0.0.1:9", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Square(context.Background(), 10.2); err == nil {
		t.Fatal("expected an error calling an unreachable server")
	}

	done := make(chan struct{})
	client.SquareAsync(context.Background(), 10.2, func(res *squarepb.SquareResponse, err error) {
		defer close(done)
		if err == nil {
			t.Error("expected an error")
		}
		if res != nil {
			t.Errorf("expected no response, got %v", res)
		}
	})
	<-done
}

func TestSplitMethodName(t *testing.T) {
	service, method := splitMethodName(squarepb.SquareService_Square_FullMethodName)
	if service != "square.v1.SquareService" || method != "Square" {
		t.Fatalf("got %s %s", service, method)
	}

	service, method = splitMethodName("bogus")
	if service != "unknown" || method != "unknown" {
		t.Fatalf("got %s %s", service, method)
	}
}

func TestDeadlineDetails(t *testing.T) {
	err := deadlineDetails{service: "s", method: "m", latency: 1500 * time.Millisecond}
	if err.Error() != "s.m timed out after 1500 ms" {
		t.Fatalf("got %q", err.Error())
	}
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("got code %s", status.Code(err))
	}
}
