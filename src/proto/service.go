package proto

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// Method is one handler of a hosted service, built with Unary or ServerStream.
type Method struct {
	fullMethod string
	unary      *grpc.MethodDesc
	stream     *grpc.StreamDesc
}

// Unary wraps a typed unary handler.
func Unary[Req any, Resp any](fullMethod string, fn func(context.Context, *Req) (*Resp, error)) Method {
	_, name := SplitMethod(fullMethod)

	desc := grpc.MethodDesc{
		MethodName: name,
		Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, in)
			}
			info := &grpc.UnaryServerInfo{FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(ctx, req.(*Req))
			})
		},
	}

	return Method{fullMethod: fullMethod, unary: &desc}
}

// ServerStream wraps a typed server-streaming handler. send delivers one
// message to the caller.
func ServerStream[Req any, Resp any](fullMethod string, fn func(ctx context.Context, req *Req, send func(*Resp) error) error) Method {
	_, name := SplitMethod(fullMethod)

	desc := grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(_ interface{}, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(stream.Context(), in, func(m *Resp) error {
				return stream.SendMsg(m)
			})
		},
	}

	return Method{fullMethod: fullMethod, stream: &desc}
}

// RegisterMethods groups methods by service and registers each service with
// the server. The server should be created with grpc.ForceServerCodec(Codec{}).
func RegisterMethods(s grpc.ServiceRegistrar, methods ...Method) error {
	descs := make(map[string]*grpc.ServiceDesc)
	var order []string

	for _, m := range methods {
		service, _ := SplitMethod(m.fullMethod)
		if service == "" {
			return fmt.Errorf("method %q has no service", m.fullMethod)
		}

		desc, ok := descs[service]
		if !ok {
			desc = &grpc.ServiceDesc{
				ServiceName: service,
				HandlerType: (*interface{})(nil),
				Metadata:    "ledgerclient",
			}
			descs[service] = desc
			order = append(order, service)
		}

		if m.unary != nil {
			desc.Methods = append(desc.Methods, *m.unary)
		}
		if m.stream != nil {
			desc.Streams = append(desc.Streams, *m.stream)
		}
	}

	for _, service := range order {
		s.RegisterService(descs[service], struct{}{})
	}

	return nil
}
