package squarerpc

//go:generate mockgen -source=context.go -destination=mock/mock_context.go

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ID represents an identifier with a numeric value and a string value.
type ID struct {
	Num uint64 // Num is the numeric value of the identifier.
	Str string // Str is the string value of the identifier.
}

// String returns the string representation of the ID.
// If the ID has a non-empty string representation, it returns the string representation.
// Otherwise, it returns the numeric representation of the ID as a decimal string.
func (id *ID) String() string {
	if id.Str != "" {
		return id.Str
	}
	return strconv.FormatUint(id.Num, 10)
}

// Response represents a response message.
// Result holds the response data.
// Error holds any error that occurred during the request.
// Status holds the status code of the response.
type Response struct {
	Result interface{}
	Error  error
	Status int
}

// ChildContext is the transport specific half of a call: it knows how the
// request was framed and how to send a response back.
type ChildContext interface {
	// ID returns the transport level identifier of the call.
	ID() *ID

	// Method returns the name of the RPC method.
	Method() string

	// ReplyDesc returns a human readable description of where the reply goes.
	ReplyDesc() string

	// Bind decodes the request payload into request.
	Bind(request interface{}) error

	// Reply writes res back to the caller.
	Reply(res *Response) bool
}

// Context represents the context of a single call.
type Context interface {
	// ID returns the unique identifier of the context.
	ID() *ID

	// Method returns the name of the RPC method.
	Method() string

	// Ctx returns the underlying context.Context.
	Ctx() context.Context

	// ReplyDesc returns the description of the reply message.
	ReplyDesc() string

	// Bind binds the request data to the context.
	Bind(request interface{}) error

	// Reply sends a response message.
	// It returns true if the response was sent successfully, false otherwise.
	Reply(res *Response) bool

	// ReplyOK sends a successful response message with the given data.
	// It returns true if the response was sent successfully, false otherwise.
	ReplyOK(data interface{}) bool

	// ReplyError sends an error response message with the given status and error.
	// It returns true if the response was sent successfully, false otherwise.
	ReplyError(status int, err error) bool

	// GetResponse returns the response message.
	GetResponse() *Response

	// PrometheusLabels returns the Prometheus labels associated with the context.
	PrometheusLabels() prometheus.Labels
}

// RequestContext adapts a ChildContext into a Context, adding reply-once
// semantics and response bookkeeping.
type RequestContext struct {
	ChildContext

	res     *Response
	resMu   sync.Mutex
	replyed atomic.Bool
	ctx     context.Context
}

// NewRequestContext wraps child so it can be passed to Server.Call.
// A nil ctx is replaced with context.Background.
func NewRequestContext(ctx context.Context, child ChildContext) *RequestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RequestContext{
		ChildContext: child,
		ctx:          ctx,
	}
}

// Ctx returns the context the call runs under.
func (c *RequestContext) Ctx() context.Context {
	return c.ctx
}

// Reply sends a response to the caller.
// Only the first reply is delivered; later calls return false.
func (c *RequestContext) Reply(res *Response) bool {
	if !c.replyed.CompareAndSwap(false, true) {
		return false
	}

	c.setResponse(res)

	return c.ChildContext.Reply(res)
}

// ReplyOK sends a successful response with the given data.
// It returns true if the response was sent successfully, otherwise false.
func (c *RequestContext) ReplyOK(data interface{}) bool {
	return c.Reply(&Response{
		Status: RPCStatusOK,
		Result: data,
	})
}

// ReplyError sends an error response with the specified status code and error message.
// It returns true if the response was successfully sent, otherwise false.
func (c *RequestContext) ReplyError(status int, err error) bool {
	return c.Reply(&Response{
		Status: status,
		Error:  err,
	})
}

func (c *RequestContext) setResponse(res *Response) {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	c.res = res
}

// GetResponse returns the response associated with the context, or nil when
// nothing has been replied yet.
func (c *RequestContext) GetResponse() *Response {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.res
}

// PrometheusLabels returns a fresh label set describing the call.
func (c *RequestContext) PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{
		"method": c.Method(),
	}
}

// Handler represents a registered method.
// Method is the function to be executed when handling the request.
// Timeout is the maximum duration allowed for the request to complete.
type Handler struct {
	Method  func(c Context)
	Timeout time.Duration
}
