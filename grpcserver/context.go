package grpcserver

import (
	"context"

	"github.com/cockroachdb/errors"
	srpc "github.com/xizhibei/go-square-rpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/proto"
)

// grpcContext is the gRPC half of a dispatch context. The unary handler
// blocks until the core returns, so replies only need to be recorded.
type grpcContext struct {
	id      *srpc.ID
	method  string
	request proto.Message
	peer    string
}

func newContext(ctx context.Context, id uint64, method string, request proto.Message) *srpc.RequestContext {
	from := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		from = p.Addr.String()
	}

	return srpc.NewRequestContext(ctx, &grpcContext{
		id:      &srpc.ID{Num: id},
		method:  method,
		request: request,
		peer:    from,
	})
}

func (c *grpcContext) ID() *srpc.ID {
	return c.id
}

func (c *grpcContext) Method() string {
	return c.method
}

func (c *grpcContext) ReplyDesc() string {
	return "grpc peer " + c.peer
}

// Bind copies the decoded gRPC request into request.
func (c *grpcContext) Bind(request interface{}) error {
	dst, ok := request.(proto.Message)
	if !ok {
		return errors.Newf("cannot bind %T, a proto message is required", request)
	}
	if dst.ProtoReflect().Descriptor() != c.request.ProtoReflect().Descriptor() {
		return errors.Newf("cannot bind %s into %s",
			c.request.ProtoReflect().Descriptor().FullName(),
			dst.ProtoReflect().Descriptor().FullName())
	}

	proto.Merge(dst, c.request)
	return nil
}

func (c *grpcContext) Reply(res *srpc.Response) bool {
	return true
}
