package bridge

import (
	"io"
)

// Stream is the duplex byte stream an Adapter owns.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// PollReader reads into the unfilled region of a ReadBuf. A reader that is
// not ready yet parks the calling goroutine instead of returning an error.
type PollReader interface {
	PollRead(rb *ReadBuf) error
}

// CursorReader reads through an opaque write cursor.
type CursorReader interface {
	ReadCursor(c Cursor) error
}

// Flusher is implemented by streams with a flush step.
type Flusher interface {
	Flush() error
}

// Shutdowner is implemented by streams that can close their write half.
type Shutdowner interface {
	CloseWrite() error
}

// VectoredWriter is implemented by streams with a gather-write path.
type VectoredWriter interface {
	WriteVectored(bufs [][]byte) (int, error)
}

// Adapter presents one Stream through both read contracts and forwards every
// write-side call unchanged.
type Adapter struct {
	inner Stream
}

// New wraps s. The Adapter owns s from here on.
func New(s Stream) *Adapter {
	return &Adapter{inner: s}
}

// Inner returns the wrapped stream.
func (a *Adapter) Inner() Stream { return a.inner }

// fill is the single read path. Whatever the inner stream reports goes
// through ReadBuf.Advance, so a short or bogus count cannot mark unwritten
// bytes as filled.
func (a *Adapter) fill(rb *ReadBuf) error {
	if rb.Remaining() == 0 {
		return nil
	}
	if pr, ok := a.inner.(PollReader); ok {
		return pr.PollRead(rb)
	}
	n, err := a.inner.Read(rb.Unfilled())
	if aerr := rb.Advance(n); aerr != nil {
		return aerr
	}
	return err
}

// PollRead implements PollReader. Previously filled bytes are left alone.
func (a *Adapter) PollRead(rb *ReadBuf) error {
	return a.fill(rb)
}

// ReadCursor implements CursorReader.
func (a *Adapter) ReadCursor(c Cursor) error {
	sub := UninitReadBuf(c.unfilled())
	err := a.fill(sub)
	if aerr := c.Advance(sub.Len()); aerr != nil {
		return aerr
	}
	return err
}

// Read implements io.Reader on top of PollRead.
func (a *Adapter) Read(p []byte) (int, error) {
	rb := UninitReadBuf(p)
	err := a.fill(rb)
	return rb.Len(), err
}

func (a *Adapter) Write(p []byte) (int, error) {
	return a.inner.Write(p)
}

// Flush flushes the inner stream when it buffers; otherwise it is a no-op.
func (a *Adapter) Flush() error {
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Shutdown closes the write half of the inner stream when supported.
func (a *Adapter) Shutdown() error {
	if s, ok := a.inner.(Shutdowner); ok {
		return s.CloseWrite()
	}
	return nil
}

// IsWriteVectored reports whether WriteVectored reaches a real gather write.
func (a *Adapter) IsWriteVectored() bool {
	_, ok := a.inner.(VectoredWriter)
	return ok
}

// WriteVectored forwards to the inner gather write. Without one, only the
// first non-empty buffer is written.
func (a *Adapter) WriteVectored(bufs [][]byte) (int, error) {
	if vw, ok := a.inner.(VectoredWriter); ok {
		return vw.WriteVectored(bufs)
	}
	for _, b := range bufs {
		if len(b) > 0 {
			return a.inner.Write(b)
		}
	}
	return 0, nil
}

func (a *Adapter) Close() error {
	return a.inner.Close()
}

// CursorSource turns a CursorReader into an io.Reader.
func CursorSource(cr CursorReader) io.Reader {
	return cursorSource{cr: cr}
}

type cursorSource struct {
	cr CursorReader
}

func (s cursorSource) Read(p []byte) (int, error) {
	rb := UninitReadBuf(p)
	err := s.cr.ReadCursor(rb.Cursor())
	return rb.Len(), err
}

// PollSource turns a PollReader into an io.Reader.
func PollSource(pr PollReader) io.Reader {
	return pollSource{pr: pr}
}

type pollSource struct {
	pr PollReader
}

func (s pollSource) Read(p []byte) (int, error) {
	rb := UninitReadBuf(p)
	err := s.pr.PollRead(rb)
	return rb.Len(), err
}
