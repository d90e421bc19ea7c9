// Package wsjson carries square calls over WebSocket connections using the
// JSON envelopes of the envelope package.
//
// Each text message is one Request or one Response. Calls on a connection
// run concurrently, so responses may arrive out of order and are matched by
// ID.
package wsjson

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/envelope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by ServeHTTP after Close.
var ErrServerClosed = errors.New("[SRPC] websocket server closed")

// Server is an http.Handler that upgrades requests to WebSocket connections
// and dispatches the calls read from them to a core server.
type Server struct {
	core      *srpc.Server
	upgrader  websocket.Upgrader
	validator *validator.Validate
	log       *zap.SugaredLogger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithValidator replaces the validator used by Bind for plain structs.
func WithValidator(v *validator.Validate) ServerOption {
	return func(s *Server) {
		s.validator = v
	}
}

// WithCheckOrigin sets the origin check of the upgrader. By default only
// same origin requests are accepted.
func WithCheckOrigin(check func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

// NewServer returns a Server dispatching to core.
func NewServer(core *srpc.Server, options ...ServerOption) *Server {
	s := &Server{
		core:  core,
		conns: make(map[*conn]struct{}),
		log:   zap.S().With("module", "srpc.wsjsonserver"),
	}
	for _, o := range options {
		o(s)
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	return s
}

// conn serializes writes, gorilla allows one concurrent writer.
type conn struct {
	ws     *websocket.Conn
	remote string
	mu     sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) close(code int, text string) {
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	c.mu.Unlock()
	_ = c.ws.Close()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// ServeHTTP upgrades the request and serves calls until the peer goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Upgrade %s %v", r.RemoteAddr, err)
		return
	}

	c := &conn{ws: ws, remote: r.RemoteAddr}
	if !s.track(c) {
		c.close(websocket.CloseGoingAway, ErrServerClosed.Error())
		return
	}
	defer func() {
		s.untrack(c)
		_ = ws.Close()
	}()

	s.log.Infof("Connection from %s", c.remote)
	s.serve(c)
}

func (s *Server) serve(c *conn) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warnf("Read from %s %v", c.remote, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		req := &envelope.Request{}
		if err := json.Unmarshal(data, req); err != nil {
			s.log.Errorf("Parse json %v", err)
			_ = c.writeJSON(req.ErrResponse(srpc.RPCStatusClientError, errors.Wrap(err, "parse request")))
			continue
		}

		params, err := envelope.UnpackBody(req.Encoding, req.Params)
		if err != nil {
			_ = c.writeJSON(req.ErrResponse(srpc.RPCStatusClientError, errors.Wrap(err, "unpack params")))
			continue
		}
		req.Params = params

		s.log.Debugf("Request from %s, method %s", c.remote, req.Method)
		go s.core.Call(newWSContext(req, c, s))
	}
}

// Close closes every open connection with a going away frame. The core
// server is left running.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server closed")
	}
	return nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

type wsContext struct {
	req     *envelope.Request
	conn    *conn
	service *Server
	ctx     context.Context
}

func newWSContext(req *envelope.Request, c *conn, service *Server) *srpc.RequestContext {
	ctx := context.Background()
	if req.Metadata != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(req.Metadata))
	}
	return srpc.NewRequestContext(ctx, &wsContext{
		req:     req,
		conn:    c,
		service: service,
		ctx:     ctx,
	})
}

func (c *wsContext) ID() *srpc.ID {
	return &srpc.ID{Num: c.req.ID}
}

func (c *wsContext) Method() string {
	return c.req.Method
}

// ReplyDesc returns the peer address.
func (c *wsContext) ReplyDesc() string {
	return c.conn.remote
}

func (c *wsContext) Bind(request interface{}) error {
	return envelope.Bind(c.service.validator, c.req.Params, request)
}

func (c *wsContext) Reply(res *srpc.Response) bool {
	var out *envelope.Response
	if res.Error != nil {
		out = c.req.ErrResponse(res.Status, res.Error)
	} else {
		out = c.req.OKResponse(res.Result)
	}

	out.Metadata = make(map[string]string)
	otel.GetTextMapPropagator().Inject(c.ctx, propagation.MapCarrier(out.Metadata))
	if len(out.Metadata) == 0 {
		out.Metadata = nil
	}

	if err := c.conn.writeJSON(out); err != nil {
		c.service.log.Errorf("Reply to %s %v", c.conn.remote, err)
	}
	return true
}
