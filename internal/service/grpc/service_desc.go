package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceDesc описывает сервис вручную в том же виде, что генерирует protoc-gen-go-grpc.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodGetOrder, Handler: stringHandler(methodGetOrder, func(s OrderAdminServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetOrder(ctx, in)
		})},
		{MethodName: methodResumeOrder, Handler: stringHandler(methodResumeOrder, func(s OrderAdminServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.ResumeOrder(ctx, in)
		})},
		{MethodName: methodGetTimeline, Handler: stringHandler(methodGetTimeline, func(s OrderAdminServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetTimeline(ctx, in)
		})},
		{MethodName: methodListUnfinished, Handler: listUnfinishedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vegshop/admin/v1/order_admin.proto",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func stringHandler(name string, call func(OrderAdminServer, context.Context, *wrapperspb.StringValue) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderAdminServer), ctx, req.(*wrapperspb.StringValue))
		})
	}
}

func listUnfinishedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderAdminServer).ListUnfinished(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(methodListUnfinished)}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderAdminServer).ListUnfinished(ctx, req.(*wrapperspb.Int32Value))
	})
}

// OrderAdminClient — клиент административного API.
type OrderAdminClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderAdminClient создаёт клиента поверх соединения.
func NewOrderAdminClient(cc grpc.ClientConnInterface) *OrderAdminClient {
	return &OrderAdminClient{cc: cc}
}

// GetOrder возвращает заказ.
func (c *OrderAdminClient) GetOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(methodGetOrder), wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ResumeOrder запускает восстановление заказа.
func (c *OrderAdminClient) ResumeOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(methodResumeOrder), wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTimeline возвращает события заказа.
func (c *OrderAdminClient) GetTimeline(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, fullMethod(methodGetTimeline), wrapperspb.String(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnfinished возвращает незавершённые заказы; limit<=0 означает значение по умолчанию.
func (c *OrderAdminClient) ListUnfinished(ctx context.Context, limit int32, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, fullMethod(methodListUnfinished), wrapperspb.Int32(limit), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
