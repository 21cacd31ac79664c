// Package rpc serves the storefront over gRPC. Messages are google.protobuf.Struct so the
// service needs no generated stubs.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "henry.storefront.v1.Storefront"

const (
	normalizeProductsMethod = "/" + ServiceName + "/NormalizeProducts"
	getCartMethod           = "/" + ServiceName + "/GetCart"
)

type StorefrontServer interface {
	NormalizeProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NormalizeProducts", Handler: normalizeProductsHandler},
		{MethodName: "GetCart", Handler: getCartHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "henry/storefront/v1/storefront.proto",
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func normalizeProductsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).NormalizeProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: normalizeProductsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).NormalizeProducts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getCartHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).GetCart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCartMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).GetCart(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls a remote Storefront service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) NormalizeProducts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, normalizeProductsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCart(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getCartMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
