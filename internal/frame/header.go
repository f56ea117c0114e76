package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the encoded size of a Header.
const HeaderSize = 12

// Header describes one frame. Fields are encoded as big-endian uint32 in the
// order Height, Width, Channels.
type Header struct {
	Height   uint32
	Width    uint32
	Channels uint32
}

// PayloadSize returns Height*Width*Channels, or an error if the product does
// not fit in an int.
func (h Header) PayloadSize() (int, error) {
	n := uint64(h.Height) * uint64(h.Width)
	total := n * uint64(h.Channels)
	if n != 0 && total/n != uint64(h.Channels) {
		return 0, fmt.Errorf("frame %s: size overflows", h)
	}
	if total > math.MaxInt {
		return 0, fmt.Errorf("frame %s: size overflows", h)
	}
	return int(total), nil
}

func (h Header) String() string {
	return fmt.Sprintf("%dx%dx%d", h.Height, h.Width, h.Channels)
}

// AppendBinary appends the 12-byte encoding of h to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, h.Height)
	b = binary.BigEndian.AppendUint32(b, h.Width)
	b = binary.BigEndian.AppendUint32(b, h.Channels)
	return b, nil
}

func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) != HeaderSize {
		return fmt.Errorf("frame header: want %d bytes, got %d", HeaderSize, len(b))
	}
	h.Height = binary.BigEndian.Uint32(b[0:4])
	h.Width = binary.BigEndian.Uint32(b[4:8])
	h.Channels = binary.BigEndian.Uint32(b[8:12])
	return nil
}

// ReadHeader reads exactly one header from r. A stream that ends before all
// 12 bytes arrive, including one that yields nothing at all, reports io.EOF:
// a truncated header is end of stream, not a framing error.
func ReadHeader(r io.Reader) (Header, error) {
	var (
		h   Header
		buf [HeaderSize]byte
	)
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return h, io.EOF
		}
		return h, err
	}
	err := h.UnmarshalBinary(buf[:])
	return h, err
}
