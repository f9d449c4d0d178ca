package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// CoordinatorServer is the Assignment/Liveness RPC surface every peer
// exposes. Every peer may call every other peer - NextBucket is only
// meaningful when the callee is leader, Processing is answered by whichever
// peer is asked regardless of role.
type CoordinatorServer interface {
	NextBucket(ctx context.Context, req *NextBucketRequest) (*NextBucketResponse, error)
	Processing(ctx context.Context, req *ProcessingRequest) (*ProcessingResponse, error)
}

// CoordinatorClient is the client-side stub for CoordinatorServer, built by
// NewCoordinatorClient around a plain *grpc.ClientConn.
type CoordinatorClient interface {
	NextBucket(ctx context.Context, req *NextBucketRequest) (*NextBucketResponse, error)
	Processing(ctx context.Context, req *ProcessingRequest) (*ProcessingResponse, error)
}

type coordinatorClient struct {
	cc *grpc.ClientConn
}

// NewCoordinatorClient wraps an established connection to a peer.
func NewCoordinatorClient(cc *grpc.ClientConn) CoordinatorClient {
	return &coordinatorClient{cc: cc}
}

func (c *coordinatorClient) NextBucket(ctx context.Context, req *NextBucketRequest) (*NextBucketResponse, error) {
	resp := new(NextBucketResponse)
	if err := c.cc.Invoke(ctx, "/dcc.Coordinator/NextBucket", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *coordinatorClient) Processing(ctx context.Context, req *ProcessingRequest) (*ProcessingResponse, error) {
	resp := new(ProcessingResponse)
	if err := c.cc.Invoke(ctx, "/dcc.Coordinator/Processing", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

// RegisterCoordinatorServer wires srv into s using the hand-built
// ServiceDesc below, the stand-in for code a protoc plugin would normally
// generate from a .proto file.
func RegisterCoordinatorServer(s *grpc.Server, srv CoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

func nextBucketHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(NextBucketRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).NextBucket(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dcc.Coordinator/NextBucket"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).NextBucket(ctx, req.(*NextBucketRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func processingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ProcessingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Processing(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dcc.Coordinator/Processing"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).Processing(ctx, req.(*ProcessingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// coordinatorServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from a coordinator.proto defining NextBucket and Processing as
// unary RPCs on a Coordinator service.
var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: "dcc.Coordinator",
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NextBucket", Handler: nextBucketHandler},
		{MethodName: "Processing", Handler: processingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coordinator.rpc",
}
