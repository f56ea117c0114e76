package transform

import (
	"context"

	"pixelpipe/internal/frame"
)

// Transformer processes one frame. It may mutate img in place and return it,
// or return a new image; either way the result must keep img's shape.
type Transformer interface {
	Process(ctx context.Context, img *frame.Image, opts Options) (*frame.Image, error)
}

// Func adapts a plain function to Transformer.
type Func func(ctx context.Context, img *frame.Image, opts Options) (*frame.Image, error)

func (f Func) Process(ctx context.Context, img *frame.Image, opts Options) (*frame.Image, error) {
	return f(ctx, img, opts)
}

// PixelFunc builds a Transformer that rewrites every pixel in place.
func PixelFunc(fn func(px []uint8)) Transformer {
	return Func(func(_ context.Context, img *frame.Image, _ Options) (*frame.Image, error) {
		for i := 0; i+img.Channels <= len(img.Pix) && img.Channels > 0; i += img.Channels {
			fn(img.Pix[i : i+img.Channels : i+img.Channels])
		}
		return img, nil
	})
}
