// Package buffer provides a fixed-capacity byte accumulator that reports
// truncation instead of growing without bound.
package buffer

import "errors"

// ErrTruncated is returned when a write did not fit in the remaining capacity.
// The bytes that did fit were accepted.
var ErrTruncated = errors.New("buffer truncated")

type Bounded struct {
	buf []byte
}

func New(capacity int) *Bounded {
	if capacity < 0 {
		capacity = 0
	}
	return &Bounded{buf: make([]byte, 0, capacity)}
}

func (b *Bounded) Write(p []byte) (n int, err error) {
	n = min(len(p), b.Free())
	b.buf = append(b.buf, p[:n]...)
	if n < len(p) {
		err = ErrTruncated
	}
	return
}

func (b *Bounded) WriteByte(c byte) error {
	if b.Free() == 0 {
		return ErrTruncated
	}
	b.buf = append(b.buf, c)
	return nil
}

func (b *Bounded) Bytes() []byte { return b.buf }
func (b *Bounded) Len() int      { return len(b.buf) }
func (b *Bounded) Cap() int      { return cap(b.buf) }
func (b *Bounded) Free() int     { return cap(b.buf) - len(b.buf) }
func (b *Bounded) Reset()        { b.buf = b.buf[:0] }

// Take returns a copy of the contents and empties the buffer.
func (b *Bounded) Take() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	out := append([]byte(nil), b.buf...)
	b.Reset()
	return out
}
