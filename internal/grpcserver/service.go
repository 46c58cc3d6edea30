package grpcserver

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

const serviceName = "bibxml.v1.Resolver"

type ResolveRequest struct {
	Dirname        string `json:"dirname"`
	Anchor         string `json:"anchor"`
	AnchorOverride string `json:"anchor_override,omitempty"`
}

type ResolveResponse struct {
	Found    bool   `json:"found"`
	XML      string `json:"xml,omitempty"`
	Methods  string `json:"methods"`
	Outcomes string `json:"outcomes"`
	Message  string `json:"message,omitempty"`
}

type GetRefRequest struct {
	Dataset string `json:"dataset"`
	Ref     string `json:"ref"`
}

type GetRefResponse struct {
	Dataset string          `json:"dataset"`
	Ref     string          `json:"ref"`
	Body    json.RawMessage `json:"body"`
}

type ResolverServer interface {
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
	GetRef(context.Context, *GetRefRequest) (*GetRefResponse, error)
}

func RegisterResolverServer(s grpc.ServiceRegistrar, srv ResolverServer) {
	s.RegisterService(&ResolverServiceDesc, srv)
}

var ResolverServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: resolveHandler},
		{MethodName: "GetRef", Handler: getRefHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bibxml/v1/resolver.proto",
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Resolve"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServer).Resolve(ctx, req.(*ResolveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getRefHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRefRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServer).GetRef(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetRef"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServer).GetRef(ctx, req.(*GetRefRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ResolverClient calls the Resolver service with the JSON codec.
type ResolverClient struct {
	cc grpc.ClientConnInterface
}

func NewResolverClient(cc grpc.ClientConnInterface) *ResolverClient {
	return &ResolverClient{cc: cc}
}

func (c *ResolverClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Resolve", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ResolverClient) GetRef(ctx context.Context, in *GetRefRequest, opts ...grpc.CallOption) (*GetRefResponse, error) {
	out := new(GetRefResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetRef", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
