package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"pixelpipe/internal/frame"
	"pixelpipe/internal/logging"
	"pixelpipe/internal/telemetry"
	"pixelpipe/internal/transform"
)

// Runner is the frame pipe loop: read a frame, transform it, write it,
// repeat until the input ends or Stop is called. One frame is in flight at a
// time, so output order always equals input order.
type Runner struct {
	in         io.Reader
	out        io.Writer
	maxBytes   int
	emitHeader bool

	dec       *frame.Decoder
	enc       *frame.Encoder
	transform transform.Transformer
	opts      transform.Options

	log   *slog.Logger
	debug debugCfg

	stopped atomic.Bool
	seq     uint64
}

type debugCfg struct {
	delay   time.Duration // artificial delay per frame
	counter bool          // log a sequence number per frame
}

type Option func(*Runner)

// WithMaxFrameBytes caps the payload a header may declare.
func WithMaxFrameBytes(n int) Option {
	return func(r *Runner) { r.maxBytes = n }
}

// WithEmitHeader mirrors each frame's header on the output ahead of its
// payload, so pipes can be chained.
func WithEmitHeader(on bool) Option {
	return func(r *Runner) { r.emitHeader = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

func WithPerFrameDelay(d time.Duration) Option {
	return func(r *Runner) { r.debug.delay = d }
}

func WithPrintCounter(on bool) Option {
	return func(r *Runner) { r.debug.counter = on }
}

func NewRunner(in io.Reader, out io.Writer, t transform.Transformer, opts transform.Options, options ...Option) *Runner {
	if opts == nil {
		opts = transform.Options{}
	}
	r := &Runner{
		in:        in,
		out:       out,
		transform: t,
		opts:      opts,
		log:       logging.L(),
	}
	for _, o := range options {
		o(r)
	}
	r.dec = frame.NewDecoder(r.in, r.maxBytes)
	r.enc = frame.NewEncoder(r.out, r.emitHeader)
	return r
}

// Stop asks Run to return before reading the next header. A read already
// blocked on the input is only released by closing the input.
func (r *Runner) Stop() { r.stopped.Store(true) }

// Run processes frames until end of stream (nil), Stop or ctx cancellation
// (nil), a framing violation (*frame.FramingError) or an output failure.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if r.stopping(ctx) {
			r.log.Info("shutting down pixel pipe", "frames", r.seq)
			return nil
		}

		img, err := r.dec.Next()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.log.Debug("input closed", "frames", r.seq)
			return nil
		case r.stopping(ctx) && errors.Is(err, os.ErrClosed):
			r.log.Info("shutting down pixel pipe", "frames", r.seq)
			return nil
		case frame.IsFraming(err):
			return err
		default:
			return fmt.Errorf("read frame %d: %w", r.seq+1, err)
		}

		if err := r.handle(ctx, img); err != nil {
			return err
		}
	}
}

func (r *Runner) stopping(ctx context.Context) bool {
	return r.stopped.Load() || ctx.Err() != nil
}

func (r *Runner) handle(ctx context.Context, img *frame.Image) error {
	start := time.Now()
	r.seq++

	out := r.apply(ctx, img)

	if d := r.debug.delay; d > 0 {
		time.Sleep(d)
	}
	if r.debug.counter {
		r.log.Info("frame", "seq", r.seq, "shape", out.Header().String())
	}

	n, err := r.enc.Encode(out)
	telemetry.BytesOut.Add(float64(n))
	if err != nil {
		return fmt.Errorf("write frame %d: %w", r.seq, err)
	}
	telemetry.FramesTotal.Inc()
	telemetry.FrameDuration.Observe(time.Since(start).Seconds())
	return nil
}

// apply runs the transform and falls back to img, as currently held, when
// the transform errors, panics or breaks the shape contract.
func (r *Runner) apply(ctx context.Context, img *frame.Image) *frame.Image {
	shape := img.Header()
	out, err := r.invoke(ctx, img)
	reason := "error"
	if err == nil {
		if !sameShape(shape, out) {
			reason = "shape"
			err = fmt.Errorf("transform returned %s for a %s frame", describe(out), shape)
		} else {
			return out
		}
	}
	var pe *panicError
	if errors.As(err, &pe) {
		reason = "panic"
	}
	telemetry.TransformFailures.WithLabelValues(reason).Inc()
	r.log.Error("transform failed; forwarding frame", "seq", r.seq, "shape", shape.String(), "err", err)
	return img
}

func (r *Runner) invoke(ctx context.Context, img *frame.Image) (out *frame.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, &panicError{value: p}
		}
	}()
	return r.transform.Process(ctx, img, r.opts)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("transform panicked: %v", e.value) }

func sameShape(h frame.Header, img *frame.Image) bool {
	if img == nil || img.Header() != h {
		return false
	}
	return img.Validate() == nil
}

func describe(img *frame.Image) string {
	if img == nil {
		return "nil"
	}
	return fmt.Sprintf("%s with %d samples", img.Header(), len(img.Pix))
}
