package netcomm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// coordinatorServer is implemented by Coordinator. It is hand-declared
// rather than generated from a .proto file: the wire payload is a
// gob-encoded envelope boxed in wrapperspb.BytesValue, so a single
// untyped RPC method carries every collective.
type coordinatorServer interface {
	Collective(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

const coordinatorServiceName = "distoctree.netcomm.Coordinator"
const collectiveMethodName = "/" + coordinatorServiceName + "/Collective"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: coordinatorServiceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Collective",
			Handler:    collectiveHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "netcomm/coordinator.proto",
}

func collectiveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinatorServer).Collective(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: collectiveMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(coordinatorServer).Collective(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterCoordinatorServer registers a Coordinator with a gRPC server.
func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv coordinatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

// coordinatorClient is the hand-written counterpart of the stub
// protoc-gen-go-grpc would otherwise generate from the service above.
type coordinatorClient struct {
	cc grpc.ClientConnInterface
}

func newCoordinatorClient(cc grpc.ClientConnInterface) *coordinatorClient {
	return &coordinatorClient{cc: cc}
}

func (c *coordinatorClient) Collective(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, collectiveMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
