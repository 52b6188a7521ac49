// Package control is the wrapper's gRPC control plane. The service is
// described by hand with protobuf well-known types, so no generated code is
// needed on either side:
//
//	service mcwrap.v1.Control {
//	  rpc SendCommand(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc SaveAs(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc Stop(google.protobuf.Empty) returns (google.protobuf.Empty);
//	  rpc Kill(google.protobuf.Empty) returns (google.protobuf.Empty);
//	  rpc Status(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Logs(google.protobuf.Empty) returns (stream google.protobuf.StringValue);
//	}
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "mcwrap.v1.Control"

// ControlServer is the server API for the Control service.
type ControlServer interface {
	SendCommand(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SaveAs(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Kill(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Logs(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.StringValue]) error
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unaryHandler adapts one ControlServer method to grpc.MethodHandler.
func unaryHandler[Req proto.Message](name string, newReq func() Req, call func(ControlServer, context.Context, Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }

func logsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Logs(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.StringValue]{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc for the Control service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("SendCommand", newString, func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.SendCommand(ctx, in)
		}),
		unaryHandler("SaveAs", newString, func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.SaveAs(ctx, in)
		}),
		unaryHandler("Stop", newEmpty, func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Stop(ctx, in)
		}),
		unaryHandler("Kill", newEmpty, func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Kill(ctx, in)
		}),
		unaryHandler("Status", newEmpty, func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Status(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Logs",
			Handler:       logsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mcwrap/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
