package bridge

import (
	"errors"
	"fmt"
)

// ErrInvalidRead is returned when a stream reports a byte count that is
// negative or larger than the space it was given.
var ErrInvalidRead = errors.New("bridge: stream returned invalid read count")

// ReadBuf is a caller-owned buffer split into three regions:
//
//	[0, filled)         bytes delivered by the stream
//	[0, init)           bytes known to hold stream-written data
//	[filled, len(buf))  space still available to the stream
//
// filled <= init <= len(buf) holds after every call. Only Advance moves
// filled forward on behalf of a stream, and it refuses counts the stream
// could not have written.
type ReadBuf struct {
	buf    []byte
	filled int
	init   int
}

// NewReadBuf returns a ReadBuf whose whole backing slice counts as
// initialized.
func NewReadBuf(b []byte) *ReadBuf {
	return &ReadBuf{buf: b, init: len(b)}
}

// UninitReadBuf returns a ReadBuf with nothing filled or initialized.
// Use it when b may hold stale bytes that must never be reported as data.
func UninitReadBuf(b []byte) *ReadBuf {
	return &ReadBuf{buf: b}
}

// Capacity is the size of the backing slice.
func (rb *ReadBuf) Capacity() int { return len(rb.buf) }

// Len is the number of filled bytes.
func (rb *ReadBuf) Len() int { return rb.filled }

// Filled returns the filled region.
func (rb *ReadBuf) Filled() []byte { return rb.buf[:rb.filled:rb.filled] }

// Initialized returns the length of the initialized region.
func (rb *ReadBuf) Initialized() int { return rb.init }

// Unfilled returns the space a stream may write into. Bytes written there
// only become visible after Advance.
func (rb *ReadBuf) Unfilled() []byte { return rb.buf[rb.filled:] }

// Remaining is len(Unfilled()).
func (rb *ReadBuf) Remaining() int { return len(rb.buf) - rb.filled }

// Advance marks the next n unfilled bytes as filled and initialized.
func (rb *ReadBuf) Advance(n int) error {
	if n < 0 || n > rb.Remaining() {
		return fmt.Errorf("%w: %d bytes reported, %d available", ErrInvalidRead, n, rb.Remaining())
	}
	rb.filled += n
	if rb.init < rb.filled {
		rb.init = rb.filled
	}
	return nil
}

// AssumeInit records that the first n unfilled bytes hold written data
// without filling them.
func (rb *ReadBuf) AssumeInit(n int) {
	if n < 0 || n > rb.Remaining() {
		panic("bridge: AssumeInit out of range")
	}
	if end := rb.filled + n; end > rb.init {
		rb.init = end
	}
}

// SetFilled moves the filled mark to n, which must lie inside the
// initialized region.
func (rb *ReadBuf) SetFilled(n int) {
	if n < 0 || n > rb.init {
		panic("bridge: filled must not exceed initialized")
	}
	rb.filled = n
}

// Clear empties the filled region. The initialized mark is kept.
func (rb *ReadBuf) Clear() { rb.filled = 0 }

// Cursor returns a write cursor over the unfilled region.
func (rb *ReadBuf) Cursor() Cursor { return Cursor{rb: rb} }

// Cursor is a forward-only write position in a ReadBuf. It does not hand out
// the underlying slice; data goes in through Put or through a reader inside
// this package, and is committed with Advance.
type Cursor struct {
	rb *ReadBuf
}

// Remaining is the number of bytes that may still be written.
func (c Cursor) Remaining() int {
	if c.rb == nil {
		return 0
	}
	return c.rb.Remaining()
}

// Advance commits n written bytes.
func (c Cursor) Advance(n int) error {
	if c.rb == nil {
		if n == 0 {
			return nil
		}
		return ErrInvalidRead
	}
	return c.rb.Advance(n)
}

// Put copies as much of p as fits and advances past it.
func (c Cursor) Put(p []byte) int {
	if c.rb == nil {
		return 0
	}
	n := copy(c.rb.Unfilled(), p)
	c.rb.filled += n
	if c.rb.init < c.rb.filled {
		c.rb.init = c.rb.filled
	}
	return n
}

func (c Cursor) unfilled() []byte {
	if c.rb == nil {
		return nil
	}
	return c.rb.Unfilled()
}
