// Package transport hosts a Transformer behind the pixelpipe gRPC service so
// that a pipe in another process can use it as a remote transform.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	pb "pixelpipe/api/v1"
	"pixelpipe/internal/frame"
	"pixelpipe/internal/logging"
	"pixelpipe/internal/transform"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// StartServer listens on addr and registers t under name. Serve must be
// called to start accepting calls.
func StartServer(addr, name string, t transform.Transformer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(lis, name, t, opts...), nil
}

// NewServer is StartServer over an existing listener.
func NewServer(lis net.Listener, name string, t transform.Transformer, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		lis:    lis,
	}
	pb.RegisterTransformServiceServer(s.grpc, &service{name: name, t: t})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	err := s.grpc.Serve(s.lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// ----- service ------------------------------------------------------------

type service struct {
	name string
	t    transform.Transformer
}

func (s *service) Process(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	name, shape, pairs, err := pb.FromIncomingContext(ctx)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if name != "" && name != s.name {
		return nil, status.Errorf(codes.NotFound, "transform %q not served here (have %q)", name, s.name)
	}

	h := frame.Header{Height: uint32(shape.Height), Width: uint32(shape.Width), Channels: uint32(shape.Channels)}
	img, err := frame.FromPayload(h, in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	out, err := s.process(ctx, img, transform.ParseOptions(pairs))
	if err != nil {
		logging.L().Warn("remote transform failed", "transform", s.name, "shape", h.String(), "err", err)
		return nil, status.Errorf(codes.Internal, "transform %s: %v", s.name, err)
	}
	if out == nil || out.Header() != h || out.Validate() != nil {
		return nil, status.Errorf(codes.Internal, "transform %s: changed frame shape", s.name)
	}
	return wrapperspb.Bytes(out.Pix), nil
}

// process keeps a panicking transform from taking the host down; grpc-go does
// not recover handler panics.
func (s *service) process(ctx context.Context, img *frame.Image, opts transform.Options) (out *frame.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return s.t.Process(ctx, img, opts)
}
