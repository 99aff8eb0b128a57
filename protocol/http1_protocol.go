package protocol

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/nczempin/httpc-oneshot/bridge"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// Stream is what the engine needs from a connection: cursor reads plus the
// write side. *bridge.Adapter satisfies it.
type Stream interface {
	bridge.CursorReader
	io.Writer
	bridge.Flusher
	Shutdown() error
	io.Closer
}

var errAbandoned = stderrors.New("response body abandoned")

// Option configures Handshake.
type Option func(*Conn)

// WithLogger sets the logger used by the connection task.
func WithLogger(logger log.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxLineBytes caps the length of the status line, header lines and chunk
// size lines.
func WithMaxLineBytes(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxLine = n
		}
	}
}

type pending struct {
	req  *HttpRequest
	head chan headResult
}

type headResult struct {
	resp *HttpResponse
	err  error
}

// SendRequest submits the single request a connection carries.
type SendRequest struct {
	conn      *Conn
	used      atomic.Bool
	closeOnce sync.Once
}

// Conn owns the stream. Run must be started for Send to make progress.
type Conn struct {
	stream  Stream
	br      *bufio.Reader
	bw      *bufio.Writer
	logger  log.Logger
	maxLine int

	reqCh        chan *pending
	senderClosed chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	running      atomic.Bool
	err          error
}

// Handshake binds an HTTP/1.1 session to s. Nothing is written until a
// request is sent.
func Handshake(s Stream, opts ...Option) (*SendRequest, *Conn, error) {
	if s == nil {
		return nil, nil, httperrors.New(httperrors.ErrorHandshake, "nil stream", nil)
	}
	c := &Conn{
		stream:       s,
		logger:       log.NewNopLogger(),
		maxLine:      defaultMaxLine,
		reqCh:        make(chan *pending),
		senderClosed: make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.br = bufio.NewReaderSize(bridge.CursorSource(s), 4096)
	c.bw = bufio.NewWriter(s)
	return &SendRequest{conn: c}, c, nil
}

// Send writes req and waits for the response head. The body is streamed
// through the returned response's Frame method. A connection carries one
// request; later calls fail.
func (s *SendRequest) Send(ctx context.Context, req *HttpRequest) (*HttpResponse, error) {
	if req == nil {
		return nil, httperrors.New(httperrors.ErrorRequestBuild, "nil request", nil)
	}
	if !s.used.CompareAndSwap(false, true) {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorRequestInFlight,
			"connection already carried a request")
	}

	p := &pending{req: req, head: make(chan headResult, 1)}
	select {
	case s.conn.reqCh <- p:
	case <-s.conn.done:
		return nil, s.conn.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-p.head:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tells the connection no request is coming. An idle Run returns.
func (s *SendRequest) Close() error {
	s.closeOnce.Do(func() { close(s.conn.senderClosed) })
	return nil
}

// Done is closed when Run has returned.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err is the result of Run. Only valid after Done is closed.
func (c *Conn) Err() error { return c.err }

func (c *Conn) closedErr() error {
	if c.err != nil {
		return c.err
	}
	return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection task finished", nil)
}

// Run drives the connection until the response is consumed, the sender goes
// away or ctx is cancelled. It shuts down and closes the stream on return.
func (c *Conn) Run(ctx context.Context) (err error) {
	if !c.running.CompareAndSwap(false, true) {
		return httperrors.New(httperrors.ErrorHandshake, "connection task already running", nil)
	}
	stop := context.AfterFunc(ctx, c.closeStream)
	defer func() {
		stop()
		if serr := c.stream.Shutdown(); serr != nil {
			level.Debug(c.logger).Log("msg", "shutdown failed", "err", serr)
		}
		c.closeStream()
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		c.err = err
		close(c.done)
	}()

	var p *pending
	select {
	case p = <-c.reqCh:
	case <-c.senderClosed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.exchange(ctx, p)
}

func (c *Conn) closeStream() {
	c.closeOnce.Do(func() {
		if err := c.stream.Close(); err != nil {
			level.Debug(c.logger).Log("msg", "close failed", "err", err)
		}
	})
}

func (c *Conn) exchange(ctx context.Context, p *pending) error {
	resp, body, err := c.roundTrip(p.req)
	if err != nil {
		p.head <- headResult{err: err}
		return err
	}
	frames := make(chan frameResult)
	resp.frames = frames
	resp.abandon = make(chan struct{})
	p.head <- headResult{resp: resp}

	defer close(frames)
	err = c.pump(ctx, resp, frames, body)
	if err == errAbandoned {
		level.Debug(c.logger).Log("msg", "response body abandoned")
		return nil
	}
	return err
}

// roundTrip writes the request and reads the head, skipping interim 1xx
// responses other than 101.
func (c *Conn) roundTrip(req *HttpRequest) (*HttpResponse, *bodyReader, error) {
	if err := c.writeRequest(req); err != nil {
		return nil, nil, err
	}

	for {
		proto, code, reason, err := readStatusLine(c.br, c.maxLine)
		if err != nil {
			return nil, nil, err
		}
		headers, err := readHeaders(c.br, c.maxLine)
		if err != nil {
			return nil, nil, err
		}
		if code >= 100 && code < 200 && code != 101 {
			level.Debug(c.logger).Log("msg", "skipping interim response", "status", code)
			continue
		}

		mode, length, err := bodyFraming(req.Verb.String(), code, headers)
		if err != nil {
			return nil, nil, err
		}
		level.Debug(c.logger).Log("msg", "response head", "status", code, "framing", mode)
		resp := &HttpResponse{Proto: proto, StatusCode: code, Reason: reason, Headers: headers}
		return resp, &bodyReader{br: c.br, mode: mode, remain: length, maxLine: c.maxLine}, nil
	}
}

func (c *Conn) writeRequest(req *HttpRequest) error {
	fmt.Fprintf(c.bw, "%s\r\n", req.RequestLine())
	for _, h := range req.Headers {
		if !isToken(h.Key) || !validHeaderValue(h.Value) {
			return httperrors.New(httperrors.ErrorRequestBuild, fmt.Sprintf("invalid header %q", h.Key), nil)
		}
		fmt.Fprintf(c.bw, "%s: %s\r\n", h.Key, h.Value)
	}
	c.bw.WriteString("\r\n")
	if err := c.bw.Flush(); err != nil {
		return writeFailure(err)
	}
	if err := c.stream.Flush(); err != nil {
		return writeFailure(err)
	}
	level.Debug(c.logger).Log("msg", "request written", "line", req.RequestLine())
	return nil
}

func writeFailure(err error) error {
	var he *httperrors.HttpError
	if stderrors.As(err, &he) {
		return err
	}
	return httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "writing request", err)
}

// pump hands frames to the consumer one at a time. A read error is delivered
// as the final frame result.
func (c *Conn) pump(ctx context.Context, resp *HttpResponse, frames chan<- frameResult, body *bodyReader) error {
	deliver := func(fr frameResult) error {
		select {
		case frames <- fr:
			return nil
		case <-resp.abandon:
			return errAbandoned
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		f, err := body.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			_ = deliver(frameResult{err: err})
			return err
		}
		if derr := deliver(frameResult{frame: f}); derr != nil {
			return derr
		}
	}
}
