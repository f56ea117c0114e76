package frame

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes caps the payload a single header may declare.
const DefaultMaxFrameBytes = 256 << 20

// Decoder reads frames from a byte stream.
type Decoder struct {
	r        io.Reader
	maxBytes int
}

// NewDecoder returns a decoder reading from r. maxBytes <= 0 selects
// DefaultMaxFrameBytes.
func NewDecoder(r io.Reader, maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Decoder{r: r, maxBytes: maxBytes}
}

// Next reads one header and its payload. It returns io.EOF when the stream
// ends at or inside a header, and a *FramingError when the header is
// unusable or the stream ends inside the payload.
func (d *Decoder) Next() (*Image, error) {
	h, err := ReadHeader(d.r)
	if err != nil {
		return nil, err
	}
	size, err := d.check(h)
	if err != nil {
		return nil, err
	}

	pix := make([]byte, size)
	n, err := io.ReadFull(d.r, pix)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, &FramingError{Header: h, Expected: size, Got: n}
	case err != nil:
		return nil, fmt.Errorf("read payload %s: %w", h, err)
	}
	return FromPayload(h, pix)
}

func (d *Decoder) check(h Header) (int, error) {
	size, err := h.PayloadSize()
	if err != nil {
		return 0, &FramingError{Header: h, Reason: err.Error()}
	}
	if h.Channels == 0 && h.Height != 0 && h.Width != 0 {
		return 0, &FramingError{Header: h, Reason: "zero channels for a non-empty frame"}
	}
	if size > d.maxBytes {
		return 0, &FramingError{Header: h, Reason: fmt.Sprintf("payload of %d bytes exceeds limit of %d", size, d.maxBytes)}
	}
	return size, nil
}
