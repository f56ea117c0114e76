// Package pixelpipev1 describes the gRPC service that remote transforms
// implement. Payloads travel as google.protobuf.BytesValue; the frame shape
// and the transform options travel as request metadata so the message body
// stays the raw pixel buffer.
package pixelpipev1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName   = "pixelpipe.v1.TransformService"
	ProcessMethod = "/" + ServiceName + "/Process"

	// ShapeKey carries "height,width,channels".
	ShapeKey = "pixelpipe-shape"
	// OptionKey carries one "key=value" per transform option.
	OptionKey = "pixelpipe-option"
	// TransformKey names the transform the caller expects the server to run.
	TransformKey = "pixelpipe-transform"
)

// TransformServiceServer is implemented by transform hosts.
type TransformServiceServer interface {
	Process(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func RegisterTransformServiceServer(s grpc.ServiceRegistrar, srv TransformServiceServer) {
	s.RegisterService(&TransformService_ServiceDesc, srv)
}

func processHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransformServiceServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProcessMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransformServiceServer).Process(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var TransformService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransformServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pixelpipe/v1/transform.proto",
}

// TransformServiceClient is the caller side of the service.
type TransformServiceClient interface {
	Process(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type transformServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTransformServiceClient(cc grpc.ClientConnInterface) TransformServiceClient {
	return &transformServiceClient{cc}
}

func (c *transformServiceClient) Process(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, ProcessMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Shape is the frame geometry sent alongside a payload.
type Shape struct {
	Height, Width, Channels int
}

func (s Shape) String() string {
	return fmt.Sprintf("%d,%d,%d", s.Height, s.Width, s.Channels)
}

// ParseShape parses the ShapeKey metadata value.
func ParseShape(v string) (Shape, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return Shape{}, fmt.Errorf("shape %q: want height,width,channels", v)
	}
	var dims [3]int
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Shape{}, fmt.Errorf("shape %q: bad dimension %q: %w", v, p, err)
		}
		dims[i] = int(n)
	}
	return Shape{Height: dims[0], Width: dims[1], Channels: dims[2]}, nil
}

// OutgoingContext attaches shape, transform name and options to ctx.
func OutgoingContext(ctx context.Context, transform string, shape Shape, options []string) context.Context {
	kv := []string{ShapeKey, shape.String()}
	if transform != "" {
		kv = append(kv, TransformKey, transform)
	}
	for _, o := range options {
		kv = append(kv, OptionKey, o)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// FromIncomingContext extracts what OutgoingContext attached.
func FromIncomingContext(ctx context.Context) (transform string, shape Shape, options []string, err error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", Shape{}, nil, fmt.Errorf("missing request metadata")
	}
	sv := md.Get(ShapeKey)
	if len(sv) != 1 {
		return "", Shape{}, nil, fmt.Errorf("want exactly one %s, got %d", ShapeKey, len(sv))
	}
	if shape, err = ParseShape(sv[0]); err != nil {
		return "", Shape{}, nil, err
	}
	if t := md.Get(TransformKey); len(t) > 0 {
		transform = t[0]
	}
	return transform, shape, md.Get(OptionKey), nil
}
