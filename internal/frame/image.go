package frame

import "fmt"

// Image is a height x width x channels array of uint8 samples backed by a
// single row-major slice.
type Image struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

// NewImage allocates a zeroed image.
func NewImage(height, width, channels int) *Image {
	return &Image{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]uint8, height*width*channels),
	}
}

// FromPayload wraps pix as an image of the shape declared by h. pix is not
// copied. A length mismatch is a framing violation.
func FromPayload(h Header, pix []byte) (*Image, error) {
	want, err := h.PayloadSize()
	if err != nil {
		return nil, &FramingError{Header: h, Reason: err.Error()}
	}
	if len(pix) != want {
		return nil, &FramingError{Header: h, Expected: want, Got: len(pix)}
	}
	return &Image{
		Height:   int(h.Height),
		Width:    int(h.Width),
		Channels: int(h.Channels),
		Pix:      pix,
	}, nil
}

// Header returns the wire header describing img's shape.
func (img *Image) Header() Header {
	return Header{Height: uint32(img.Height), Width: uint32(img.Width), Channels: uint32(img.Channels)}
}

// Offset returns the index into Pix of sample [row][col][ch].
func (img *Image) Offset(row, col, ch int) int {
	return (row*img.Width+col)*img.Channels + ch
}

func (img *Image) At(row, col, ch int) uint8 {
	return img.Pix[img.Offset(row, col, ch)]
}

func (img *Image) Set(row, col, ch int, v uint8) {
	img.Pix[img.Offset(row, col, ch)] = v
}

// Pixel returns the channel samples at [row][col]. The slice aliases Pix.
func (img *Image) Pixel(row, col int) []uint8 {
	i := img.Offset(row, col, 0)
	return img.Pix[i : i+img.Channels : i+img.Channels]
}

// SameShape reports whether other has the same dimensions and a payload of
// the matching length.
func (img *Image) SameShape(other *Image) bool {
	if other == nil {
		return false
	}
	return img.Height == other.Height &&
		img.Width == other.Width &&
		img.Channels == other.Channels &&
		len(other.Pix) == len(img.Pix)
}

// Validate checks that Pix holds exactly Height*Width*Channels samples.
func (img *Image) Validate() error {
	if img.Height < 0 || img.Width < 0 || img.Channels < 0 {
		return fmt.Errorf("image: negative dimension %dx%dx%d", img.Height, img.Width, img.Channels)
	}
	if want := img.Height * img.Width * img.Channels; len(img.Pix) != want {
		return fmt.Errorf("image %dx%dx%d: want %d samples, got %d",
			img.Height, img.Width, img.Channels, want, len(img.Pix))
	}
	return nil
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	out := *img
	out.Pix = append([]uint8(nil), img.Pix...)
	return &out
}
