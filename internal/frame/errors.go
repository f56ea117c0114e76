package frame

import (
	"errors"
	"fmt"
)

// ErrFraming is matched by every *FramingError via errors.Is.
var ErrFraming = errors.New("framing violation")

// FramingError reports a frame whose payload does not agree with its header.
// The stream cannot be resynchronised after one.
type FramingError struct {
	Header   Header
	Expected int
	Got      int
	Reason   string
}

func (e *FramingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("framing violation: frame %s: %s", e.Header, e.Reason)
	}
	return fmt.Sprintf("framing violation: frame %s: wrong payload length (exp: %d, read %d)",
		e.Header, e.Expected, e.Got)
}

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// IsFraming reports whether err is, or wraps, a framing violation.
func IsFraming(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}
