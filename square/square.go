// Package square implements the square operation and binds it to the
// dispatch core.
package square

import (
	"time"

	"github.com/cockroachdb/errors"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/squarepb"
)

// Method is the name the operation is registered under.
const Method = "square"

// DefaultTimeout bounds a single call on the server.
const DefaultTimeout = 5 * time.Second

// Square returns x*x. Overflow yields +Inf and NaN stays NaN, as IEEE-754 says.
func Square(x float64) float64 {
	return x * x
}

// NewHandler returns the handler serving Method.
// A zero timeout falls back to DefaultTimeout.
func NewHandler(timeout time.Duration) *srpc.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &srpc.Handler{
		Method: func(c srpc.Context) {
			var req squarepb.SquareRequest
			if err := c.Bind(&req); err != nil {
				c.ReplyError(srpc.RPCStatusClientError, errors.Wrap(err, "bind square request"))
				return
			}

			c.ReplyOK(&squarepb.SquareResponse{Number: Square(req.GetNumber())})
		},
		Timeout: timeout,
	}
}

// Register registers the square handler on r.
func Register(r srpc.Registrar, timeout time.Duration) {
	r.Register(Method, NewHandler(timeout))
}
