package squarerpc

import (
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-square-rpc/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

var (
	// ErrNoReply is an error indicating an empty reply.
	ErrNoReply = errors.New("[SRPC] empty reply")

	// ErrTooFrequently is an error indicating that the request was made too frequently.
	ErrTooFrequently = errors.New("[SRPC] too frequently, try again later")

	// ErrTimeout is an error indicating a timeout occurred.
	ErrTimeout = errors.New("[SRPC] timeout")

	// ErrUnknownMethod is returned for calls to methods nobody registered.
	ErrUnknownMethod = errors.New("[SRPC] unknown method")
)

const defaultHandlerTimeout = 10 * time.Second

// Server dispatches calls decoded by a transport to registered handlers.
type Server struct {
	log        *zap.SugaredLogger  // Logger for server logs.
	handlerMap map[string]*Handler // Map of registered handlers.
	handlerMu  sync.RWMutex        // Mutex to synchronize access to handlerMap.

	cbList       []OnAfterResponseCallback // List of callbacks to be executed after each response.
	cbMu         sync.RWMutex
	afterResPool sync.Pool // Pool of events for after-response processing.

	options    *serverOptions // Options for server configuration.
	workerPool *tunny.Pool    // Pool of worker goroutines for request processing.
	limiter    *rate.Limiter  // Rate limiter for controlling request rate.
}

// NewServer creates a new instance of the Server struct with the provided options.
// It initializes the server with default values for the options that are not provided.
func NewServer(options ...ServerOption) *Server {
	o := serverOptions{
		name:            uuid.New().String(),
		logResponse:     false,
		workerNum:       runtime.NumCPU(),
		limiterDuration: time.Millisecond,
		limiterCount:    1000,
		limiterReject:   true,
		defaultTimeout:  defaultHandlerTimeout,
	}

	for _, option := range options {
		option(&o)
	}

	if o.workerNum <= 0 {
		o.workerNum = runtime.NumCPU()
	}

	limiter := rate.NewLimiter(rate.Every(o.limiterDuration), o.limiterCount)

	server := Server{
		log:        zap.S().With("module", "srpc.server"),
		handlerMap: make(map[string]*Handler),
		options:    &o,

		afterResPool: sync.Pool{
			New: func() interface{} {
				return new(AfterResponseEvent)
			},
		},
		workerPool: tunny.NewCallback(o.workerNum),
		limiter:    limiter,
	}

	return &server
}

// Name returns the name the server reports in metrics.
func (s *Server) Name() string {
	return s.options.name
}

// Register registers a method with its corresponding handler in the server.
// If the method is already registered, it will be overridden.
func (s *Server) Register(method string, hdl *Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	if _, ok := s.handlerMap[method]; ok {
		s.log.Warnf("Method %s already registered, will override", method)
	}

	s.handlerMap[method] = hdl
	s.log.Debugf("Method %s registered", method)
}

// Methods returns the registered method names in sorted order.
func (s *Server) Methods() []string {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	methods := make([]string, 0, len(s.handlerMap))
	for m := range s.handlerMap {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

func (s *Server) handler(method string) (*Handler, bool) {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	hdl, ok := s.handlerMap[method]
	return hdl, ok
}

// Call handles the RPC call by executing the specified method and processing the response.
// It measures the duration of the call, logs the response if enabled, and emits an event after the response.
// If the call exceeds the timeout or encounters an error, it replies with an appropriate error message.
// Call returns once a response has been handed to the transport.
func (s *Server) Call(c Context) {
	start := time.Now()
	defer func() {
		duration := time.Since(start)

		evt := s.afterResPool.Get().(*AfterResponseEvent)
		evt.Ctx = c
		evt.Labels = c.PrometheusLabels()
		evt.Duration = duration
		evt.Res = c.GetResponse()

		if s.options.logResponse {
			status := 0
			if evt.Res != nil {
				status = evt.Res.Status
			}

			s.log.Infof("Response to %s [%d] (%v)", c.ReplyDesc(), status, duration.Round(time.Millisecond))
		}

		s.emitAfterResponse(evt)
	}()

	if s.options.limiterReject {
		if !s.limiter.Allow() {
			c.ReplyError(RPCStatusTooManyRequests, ErrTooFrequently)
			return
		}
	} else if err := s.limiter.Wait(c.Ctx()); err != nil {
		c.ReplyError(RPCStatusRequestTimeout, ErrTimeout)
		return
	}

	hdl, ok := s.handler(c.Method())
	if !ok {
		c.ReplyError(RPCStatusNotFound, errors.Wrapf(ErrUnknownMethod, "method %s", c.Method()))
		return
	}

	timeout := hdl.Timeout
	if timeout <= 0 {
		timeout = s.options.defaultTimeout
	}

	_, err := s.workerPool.ProcessTimed(func() {
		defer func() {
			if i := recover(); i != nil {
				err := errors.Newf("panic in method %s %v", c.Method(), i)
				s.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().Error(err)
				c.ReplyError(RPCStatusServerError, err)
			}
		}()

		hdl.Method(c)

		// If the send is successful, it means that the method did not reply with any message.
		if c.ReplyError(RPCStatusServerError, ErrNoReply) {
			s.log.Warnf("Method %s no reply", c.Method())
		}
	}, timeout)

	if errors.Is(err, tunny.ErrJobTimedOut) {
		c.ReplyError(RPCStatusRequestTimeout, ErrTimeout)
	} else if err != nil {
		c.ReplyError(RPCStatusServerError, err)
	}
}

// Close stops the worker pool. Calls made after Close panic.
func (s *Server) Close() error {
	s.workerPool.Close()
	return nil
}

// AfterResponseEvent describes a finished call.
// The event is recycled once every callback returned, so callbacks must not keep it.
type AfterResponseEvent struct {
	Ctx      Context
	Labels   prometheus.Labels
	Duration time.Duration
	Res      *Response
}

// OnAfterResponseCallback is a function type that represents a callback function
// to be executed after a response is sent. It takes a pointer to an AfterResponseEvent
// as its parameter.
type OnAfterResponseCallback func(e *AfterResponseEvent)

// OnAfterResponse registers a callback function to be executed after each response is sent.
func (s *Server) OnAfterResponse(cb OnAfterResponseCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cbList = append(s.cbList, cb)
}

func (s *Server) emitAfterResponse(e *AfterResponseEvent) {
	s.cbMu.RLock()
	for _, cb := range s.cbList {
		cb(e)
	}
	s.cbMu.RUnlock()

	*e = AfterResponseEvent{}
	s.afterResPool.Put(e)
}

func statusLabel(res *Response) string {
	if res == nil {
		return "0"
	}
	return strconv.Itoa(res.Status)
}

// RegisterMetrics records every response into prometheus.
// responseTime must be labelled by method, name and status; errorCount
// additionally by message. Either may be nil.
func (s *Server) RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.GaugeVec) {
	s.OnAfterResponse(func(e *AfterResponseEvent) {
		labels := prometheus.Labels{
			"method": e.Labels["method"],
			"name":   s.options.name,
			"status": statusLabel(e.Res),
		}

		if responseTime != nil {
			responseTime.
				With(labels).
				Observe(e.Duration.Seconds())
		}

		if e.Res != nil && e.Res.Error != nil && errorCount != nil {
			labels["message"] = e.Res.Error.Error()
			errorCount.
				With(labels).
				Inc()
		}
	})
}

// SetTelemetry records every response into the OpenTelemetry instruments of tel.
func (s *Server) SetTelemetry(tel *telemetry.Telemetry) {
	if tel == nil {
		return
	}
	s.OnAfterResponse(func(e *AfterResponseEvent) {
		var err error
		if e.Res != nil {
			err = e.Res.Error
		}
		tel.RecordRequest(e.Ctx.Ctx(), e.Duration, e.Labels["method"], statusLabel(e.Res), err)
	})
}
