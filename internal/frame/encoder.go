package frame

import (
	"fmt"
	"io"
)

type flusher interface {
	Flush() error
}

// Encoder writes frames to a byte stream and flushes after every frame.
type Encoder struct {
	w          io.Writer
	withHeader bool
}

// NewEncoder returns an encoder writing payloads to w. When withHeader is
// set each payload is preceded by its header.
func NewEncoder(w io.Writer, withHeader bool) *Encoder {
	return &Encoder{w: w, withHeader: withHeader}
}

// Encode writes img and flushes w if it buffers. It returns the number of
// bytes written.
func (e *Encoder) Encode(img *Image) (int, error) {
	if err := img.Validate(); err != nil {
		return 0, err
	}
	var written int
	if e.withHeader {
		hdr, _ := img.Header().MarshalBinary()
		n, err := e.w.Write(hdr)
		written += n
		if err != nil {
			return written, fmt.Errorf("write header: %w", err)
		}
	}
	n, err := e.w.Write(img.Pix)
	written += n
	if err != nil {
		return written, fmt.Errorf("write payload: %w", err)
	}
	if f, ok := e.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return written, fmt.Errorf("flush: %w", err)
		}
	}
	return written, nil
}

// WriteFrame writes header and payload for img to w. Feeders and tests use
// it to produce pipe input.
func WriteFrame(w io.Writer, img *Image) error {
	_, err := NewEncoder(w, true).Encode(img)
	return err
}
