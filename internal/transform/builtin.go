package transform

import (
	"context"
	"fmt"

	"pixelpipe/internal/frame"
)

// DefaultName is used when no transform is selected.
const DefaultName = "red"

func init() {
	Register("identity", func() Transformer { return Func(identity) })
	Register("red", func() Transformer { return ZeroChannels(0, 1) })
	Register("green", func() Transformer { return ZeroChannels(0, 2) })
	Register("blackout", func() Transformer { return Func(blackout) })
	Register("zero", func() Transformer { return Func(zeroFromOptions) })
	Register("invert", func() Transformer { return Func(invert) })
}

func identity(_ context.Context, img *frame.Image, _ Options) (*frame.Image, error) {
	return img, nil
}

func blackout(_ context.Context, img *frame.Image, _ Options) (*frame.Image, error) {
	clear(img.Pix)
	return img, nil
}

// ZeroChannels returns a transform that zeroes the given channel indices of
// every pixel. Indices outside the frame's channel count are an error.
func ZeroChannels(channels ...int) Transformer {
	return Func(func(_ context.Context, img *frame.Image, _ Options) (*frame.Image, error) {
		return zero(img, channels)
	})
}

// zeroFromOptions zeroes the channels listed in the "channels" option.
func zeroFromOptions(_ context.Context, img *frame.Image, opts Options) (*frame.Image, error) {
	chs, ok, err := opts.Ints("channels")
	if err != nil {
		return img, err
	}
	if !ok {
		return img, fmt.Errorf("zero: option channels is required")
	}
	return zero(img, chs)
}

func zero(img *frame.Image, channels []int) (*frame.Image, error) {
	if err := checkChannels(img, channels); err != nil {
		return img, err
	}
	for i := 0; i < len(img.Pix); i += img.Channels {
		for _, ch := range channels {
			img.Pix[i+ch] = 0
		}
	}
	return img, nil
}

// invert replaces v with 255-v on every channel, or on the channels listed
// in the "channels" option.
func invert(_ context.Context, img *frame.Image, opts Options) (*frame.Image, error) {
	chs, ok, err := opts.Ints("channels")
	if err != nil {
		return img, err
	}
	if !ok {
		for i, v := range img.Pix {
			img.Pix[i] = 255 - v
		}
		return img, nil
	}
	if err := checkChannels(img, chs); err != nil {
		return img, err
	}
	for i := 0; i < len(img.Pix); i += img.Channels {
		for _, ch := range chs {
			img.Pix[i+ch] = 255 - img.Pix[i+ch]
		}
	}
	return img, nil
}

func checkChannels(img *frame.Image, channels []int) error {
	for _, ch := range channels {
		if ch < 0 || ch >= img.Channels {
			return fmt.Errorf("channel %d out of range for %d-channel frame", ch, img.Channels)
		}
	}
	return nil
}
