package grpcclient

import (
	"github.com/xizhibei/go-square-rpc/squarepb"
	"go.uber.org/zap"
)

// Call represents an active square call.
type Call struct {
	Number   float64                  // The number sent to the server.
	Response *squarepb.SquareResponse // Set when the call succeeded.
	Error    error                    // After completion, the error status.
	Done     chan *Call               // Receives *Call when Go is complete.
}

func (call *Call) done(log *zap.SugaredLogger) {
	select {
	case call.Done <- call:
		// ok
	default:
		// We don't want to block here. It is the caller's responsibility to make
		// sure the channel has enough buffer space. See comment in Go().
		log.Warn("discarding Call reply due to insufficient Done chan capacity")
	}
}
