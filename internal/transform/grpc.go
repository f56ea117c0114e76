package transform

import (
	"context"
	"fmt"
	"time"

	pb "pixelpipe/api/v1"
	"pixelpipe/internal/frame"
	"pixelpipe/internal/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RetryPolicy bounds how a GRPCClient retries transient failures.
type RetryPolicy struct {
	Attempts int           // extra attempts after the first
	Backoff  time.Duration // pause between attempts
}

// GRPCClient runs frames through a transform hosted in another process.
type GRPCClient struct {
	conn    *grpc.ClientConn
	svc     pb.TransformServiceClient
	health  healthpb.HealthClient
	name    string
	timeout time.Duration
	retry   RetryPolicy
}

// NewGRPCClient connects lazily to target. name is forwarded to the server
// so a host serving several transforms can route the call.
func NewGRPCClient(target, name string, timeout time.Duration, retry RetryPolicy, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{
		conn:    conn,
		svc:     pb.NewTransformServiceClient(conn),
		health:  healthpb.NewHealthClient(conn),
		name:    name,
		timeout: timeout,
		retry:   retry,
	}, nil
}

func (c *GRPCClient) Process(ctx context.Context, img *frame.Image, opts Options) (*frame.Image, error) {
	shape := pb.Shape{Height: img.Height, Width: img.Width, Channels: img.Channels}
	req := wrapperspb.Bytes(img.Pix)

	var (
		resp *wrapperspb.BytesValue
		err  error
	)
	for attempt := 0; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 0 {
			logging.L().Debug("remote transform retry", "transform", c.name, "attempt", attempt, "err", err)
			if !sleepCtx(ctx, c.retry.Backoff) {
				return img, ctx.Err()
			}
		}
		resp, err = c.call(ctx, shape, opts, req)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return img, fmt.Errorf("remote transform %s: %w", c.name, err)
	}
	if len(resp.GetValue()) != len(img.Pix) {
		return img, fmt.Errorf("remote transform %s: returned %d bytes for %d-byte frame",
			c.name, len(resp.GetValue()), len(img.Pix))
	}
	out := *img
	out.Pix = resp.GetValue()
	return &out, nil
}

func (c *GRPCClient) call(ctx context.Context, shape pb.Shape, opts Options, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = pb.OutgoingContext(ctx, c.name, shape, opts.Pairs())
	return c.svc.Process(ctx, req)
}

// Health asks the remote host whether it is serving.
func (c *GRPCClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: pb.ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("remote transform %s: health %s", c.name, resp.GetStatus())
	}
	return nil
}

func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
