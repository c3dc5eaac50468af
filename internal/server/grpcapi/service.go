// Copyright 2025 Certen Protocol
//
// Hand-written ProverService gRPC stubs. No .proto file exists anywhere
// in the source this module was grounded on, so the descriptor, typed
// server/client interfaces, and method wiring below are written directly
// against google.golang.org/grpc's low-level ServiceDesc/StreamDesc
// machinery instead of being generated by protoc-gen-go-grpc — the shape
// (Server interface, RegisterXServer, typed client) matches what that
// generator produces, with the JSON codec from codec.go standing in for
// the protobuf wire format a .proto would normally define.

package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "ev_prover.ProverService"

// Server is the business-logic contract the gRPC layer dispatches to.
// internal/server/grpcapi/handler.go provides the production
// implementation, wired to the job registry and the three pipelines.
type Server interface {
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
	Prove(ctx context.Context, req *ProveRequest) (*ProveResponse, error)
	Await(ctx context.Context, req *AwaitRequest) (*AwaitResponse, error)
	StreamCompletions(req *StreamCompletionsRequest, stream ProverService_StreamCompletionsServer) error
}

// ProverService_StreamCompletionsServer is the server-side handle for the
// StreamCompletions server-streaming RPC.
type ProverService_StreamCompletionsServer interface {
	Send(*CompletionEvent) error
	grpc.ServerStream
}

type streamCompletionsServer struct {
	grpc.ServerStream
}

func (s *streamCompletionsServer) Send(ev *CompletionEvent) error {
	return s.ServerStream.SendMsg(ev)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(StatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Status(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func proveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ProveRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Prove(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Prove"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Prove(ctx, req.(*ProveRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func awaitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(AwaitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Await(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Await"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Await(ctx, req.(*AwaitRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func streamCompletionsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(StreamCompletionsRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(Server).StreamCompletions(req, &streamCompletionsServer{stream})
}

// serviceDesc is the hand-rolled equivalent of a protoc-gen-go-grpc
// _ServiceDesc variable.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Prove", Handler: proveHandler},
		{MethodName: "Await", Handler: awaitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamCompletions", Handler: streamCompletionsHandler, ServerStreams: true},
	},
}

// RegisterProverServiceServer wires srv into a *grpc.Server, the
// hand-written equivalent of generated code's RegisterXServer function.
func RegisterProverServiceServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// Client is a thin typed wrapper over grpc.ClientConn, standing in for a
// protoc-gen-go-grpc client stub.
type Client struct {
	cc *grpc.ClientConn
}

func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	resp := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Status", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Prove(ctx context.Context, req *ProveRequest) (*ProveResponse, error) {
	resp := new(ProveResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Prove", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Await(ctx context.Context, req *AwaitRequest) (*AwaitResponse, error) {
	resp := new(AwaitResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Await", req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

// ProverService_StreamCompletionsClient is the client-side handle for the
// StreamCompletions server-streaming RPC.
type ProverService_StreamCompletionsClient interface {
	Recv() (*CompletionEvent, error)
	grpc.ClientStream
}

type streamCompletionsClient struct {
	grpc.ClientStream
}

func (s *streamCompletionsClient) Recv() (*CompletionEvent, error) {
	ev := new(CompletionEvent)
	if err := s.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Client) StreamCompletions(ctx context.Context, req *StreamCompletionsRequest) (ProverService_StreamCompletionsClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/StreamCompletions", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &streamCompletionsClient{stream}, nil
}

// statusError maps an internal error taxonomy code to a stable gRPC
// status using the InvalidArgument/FailedPrecondition/Unavailable/
// Internal/DeadlineExceeded codes.
func statusError(code codes.Code, format string, args ...interface{}) error {
	return status.Error(code, fmt.Sprintf(format, args...))
}
