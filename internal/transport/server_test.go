package transport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "pixelpipe/api/v1"
	"pixelpipe/internal/frame"
	"pixelpipe/internal/transform"
)

func startBufServer(t *testing.T, name string, tr transform.Transformer) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, name, tr)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)
	return lis
}

func dialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func newClient(t *testing.T, lis *bufconn.Listener, name string, retry transform.RetryPolicy) *transform.GRPCClient {
	t.Helper()
	c, err := transform.NewGRPCClient("passthrough:///bufnet", name, time.Second, retry,
		dialer(lis), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sample() *frame.Image {
	img := frame.NewImage(2, 2, 3)
	copy(img.Pix, []byte{255, 255, 255, 10, 20, 30, 1, 2, 3, 4, 5, 6})
	return img
}

func TestRemoteTransform_RoundTrip(t *testing.T) {
	green, err := transform.New("green")
	require.NoError(t, err)
	lis := startBufServer(t, "green", green)
	c := newClient(t, lis, "green", transform.RetryPolicy{})

	require.NoError(t, c.Health(context.Background()))

	out, err := c.Process(context.Background(), sample(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 255, 0, 0, 20, 0, 0, 2, 0, 0, 5, 0}, out.Pix)
	assert.Equal(t, 2, out.Width)
}

func TestRemoteTransform_ForwardsOptions(t *testing.T) {
	var got transform.Options
	spy := transform.Func(func(_ context.Context, img *frame.Image, o transform.Options) (*frame.Image, error) {
		got = o
		return img, nil
	})
	lis := startBufServer(t, "spy", spy)
	c := newClient(t, lis, "spy", transform.RetryPolicy{})

	_, err := c.Process(context.Background(), sample(), transform.Options{"channels": "0,2", "expr": "a=b"})
	require.NoError(t, err)
	assert.Equal(t, transform.Options{"channels": "0,2", "expr": "a=b"}, got)
}

func TestRemoteTransform_ErrorKeepsInput(t *testing.T) {
	failing := transform.Func(func(_ context.Context, img *frame.Image, _ transform.Options) (*frame.Image, error) {
		return img, errors.New("no model loaded")
	})
	lis := startBufServer(t, "failing", failing)
	c := newClient(t, lis, "failing", transform.RetryPolicy{Attempts: 2, Backoff: time.Millisecond})

	in := sample()
	out, err := c.Process(context.Background(), in, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
	assert.Same(t, in, out)
}

func TestRemoteTransform_WrongNameIsNotFound(t *testing.T) {
	id, err := transform.New("identity")
	require.NoError(t, err)
	lis := startBufServer(t, "identity", id)
	c := newClient(t, lis, "invert", transform.RetryPolicy{})

	_, err = c.Process(context.Background(), sample(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(errors.Unwrap(err)))
}

func TestService_RejectsBadShape(t *testing.T) {
	id, err := transform.New("identity")
	require.NoError(t, err)
	lis := startBufServer(t, "identity", id)

	conn, err := grpc.NewClient("passthrough:///bufnet", dialer(lis), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	cli := pb.NewTransformServiceClient(conn)

	ctx := pb.OutgoingContext(context.Background(), "identity", pb.Shape{Height: 2, Width: 2, Channels: 3}, nil)
	_, err = cli.Process(ctx, wrapperspb.Bytes([]byte{1, 2, 3}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cli.Process(context.Background(), wrapperspb.Bytes(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_ShapeChangeIsInternal(t *testing.T) {
	shrink := transform.Func(func(context.Context, *frame.Image, transform.Options) (*frame.Image, error) {
		return frame.NewImage(1, 1, 1), nil
	})
	lis := startBufServer(t, "shrink", shrink)
	c := newClient(t, lis, "shrink", transform.RetryPolicy{})

	_, err := c.Process(context.Background(), sample(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
}

func TestService_PanicIsInternal(t *testing.T) {
	panicky := transform.Func(func(context.Context, *frame.Image, transform.Options) (*frame.Image, error) {
		panic("nil model")
	})
	lis := startBufServer(t, "panicky", panicky)
	c := newClient(t, lis, "panicky", transform.RetryPolicy{})

	_, err := c.Process(context.Background(), sample(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))

	// the host is still serving
	require.NoError(t, c.Health(context.Background()))
}

// flakyService fails the first `failures` calls with Unavailable and echoes
// the payload afterwards.
type flakyService struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyService) Process(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, status.Error(codes.Unavailable, "warming up")
	}
	return wrapperspb.Bytes(in.GetValue()), nil
}

func startFlakyServer(t *testing.T, svc *flakyService) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterTransformServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func TestRemoteTransform_RetriesUnavailable(t *testing.T) {
	svc := &flakyService{failures: 1}
	lis := startFlakyServer(t, svc)
	c := newClient(t, lis, "", transform.RetryPolicy{Attempts: 2, Backoff: time.Millisecond})

	in := sample()
	out, err := c.Process(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, in.Pix, out.Pix)
	assert.EqualValues(t, 2, svc.calls.Load())
}

func TestRemoteTransform_GivesUpAfterAttempts(t *testing.T) {
	svc := &flakyService{failures: 10}
	lis := startFlakyServer(t, svc)
	c := newClient(t, lis, "", transform.RetryPolicy{Attempts: 2, Backoff: time.Millisecond})

	in := sample()
	out, err := c.Process(context.Background(), in, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Same(t, in, out)
	assert.EqualValues(t, 3, svc.calls.Load())
}

func TestRemoteTransform_CancelDuringBackoffKeepsInput(t *testing.T) {
	svc := &flakyService{failures: 10}
	lis := startFlakyServer(t, svc)
	c := newClient(t, lis, "", transform.RetryPolicy{Attempts: 5, Backoff: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	in := sample()
	start := time.Now()
	out, err := c.Process(ctx, in, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, in, out)
	assert.Less(t, time.Since(start), 30*time.Second)
	assert.LessOrEqual(t, svc.calls.Load(), int32(1))
}
