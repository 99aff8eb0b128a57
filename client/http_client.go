package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/nczempin/httpc-oneshot/bridge"
	"github.com/nczempin/httpc-oneshot/errors"
	"github.com/nczempin/httpc-oneshot/protocol"
	"github.com/nczempin/httpc-oneshot/transport"
)

// DefaultPlaceholder is what SendCompat returns for any failure.
const DefaultPlaceholder = "This is an error"

const (
	defaultPort      = 80
	defaultConnGrace = 100 * time.Millisecond
)

// TransportFactory builds an unconnected transport for a backend name.
type TransportFactory func(backend string) (transport.Transport, error)

// HttpClient performs one HTTP/1.1 exchange per Send call over a fresh
// connection.
type HttpClient struct {
	logger      log.Logger
	progress    *progress
	backend     string
	unixSocket  string
	port        uint16
	connGrace   time.Duration
	placeholder string
	newTran     TransportFactory
}

// Option configures an HttpClient.
type Option func(*HttpClient)

// WithLogger sets the logger. The default discards everything, including
// the line logged for a rejected method; a progress sink still shows it.
func WithLogger(logger log.Logger) Option {
	return func(c *HttpClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress echoes each exchange to w.
func WithProgress(w io.Writer, noColor bool) Option {
	return func(c *HttpClient) {
		if w != nil {
			c.progress = newProgress(w, noColor)
		}
	}
}

// WithTransport selects the transport backend by name.
func WithTransport(backend string) Option {
	return func(c *HttpClient) {
		c.backend = backend
	}
}

// WithUnixSocket sets the socket path used by the unix backend.
func WithUnixSocket(path string) Option {
	return func(c *HttpClient) {
		c.unixSocket = path
	}
}

// WithDefaultPort sets the port used when the URL has none.
func WithDefaultPort(port uint16) Option {
	return func(c *HttpClient) {
		if port != 0 {
			c.port = port
		}
	}
}

// WithConnGrace sets how long Send waits for the connection task after the
// body is drained. Zero means do not wait.
func WithConnGrace(d time.Duration) Option {
	return func(c *HttpClient) {
		if d >= 0 {
			c.connGrace = d
		}
	}
}

// WithPlaceholder overrides the string SendCompat returns on failure.
func WithPlaceholder(s string) Option {
	return func(c *HttpClient) {
		if s != "" {
			c.placeholder = s
		}
	}
}

// WithTransportFactory replaces transport.New.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *HttpClient) {
		if f != nil {
			c.newTran = f
		}
	}
}

// NewHttpClient creates a client with the given options.
func NewHttpClient(opts ...Option) *HttpClient {
	c := &HttpClient{
		logger:      log.NewNopLogger(),
		backend:     transport.BackendTCP,
		port:        defaultPort,
		connGrace:   defaultConnGrace,
		placeholder: DefaultPlaceholder,
		newTran:     transport.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// target is a parsed request URL plus the dial address.
type target struct {
	url  *url.URL
	host string
	port uint16
}

func (c *HttpClient) parseTarget(rawURL string) (*target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.New(errors.ErrorUriParse, "malformed URL", err)
	}
	switch u.Scheme {
	case "http":
	case "https":
		return nil, errors.New(errors.ErrorUriParse, "https is not supported", nil)
	default:
		return nil, errors.New(errors.ErrorUriParse, fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.New(errors.ErrorUriParse, "URL has no host", nil)
	}
	port := c.port
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return nil, errors.New(errors.ErrorUriParse, fmt.Sprintf("invalid port %q", p), err)
		}
		port = uint16(n)
	}
	return &target{url: u, host: host, port: port}, nil
}

// Send performs method on rawURL and returns the whole body as text.
func (c *HttpClient) Send(ctx context.Context, rawURL, method string) (string, error) {
	logger := log.With(c.logger, "req", uuid.NewString())

	tgt, err := c.parseTarget(rawURL)
	if err != nil {
		level.Error(logger).Log("msg", "invalid url", "url", rawURL, "err", err)
		return "", err
	}
	m, err := protocol.ParseMethod(method, logger)
	if err != nil {
		c.progress.rejected(method)
		return "", err
	}
	c.progress.method(m)
	verb, err := m.WireVerb()
	if err != nil {
		return "", errors.Retype(errors.ErrorRequestBuild, "method has no wire form", err)
	}

	adapter, err := c.connect(ctx, tgt)
	if err != nil {
		level.Error(logger).Log("msg", "connect failed", "host", tgt.host, "port", tgt.port, "err", err)
		return "", err
	}

	sender, conn, err := protocol.Handshake(adapter, protocol.WithLogger(logger))
	if err != nil {
		adapter.Close()
		return "", errors.Retype(errors.ErrorHandshake, "handshake failed", err)
	}
	connDone := make(chan error, 1)
	go func() {
		err := conn.Run(ctx)
		if err != nil {
			level.Warn(logger).Log("msg", "connection task failed", "err", err)
		}
		connDone <- err
	}()
	defer sender.Close()

	req, err := protocol.NewRequest(verb, tgt.url)
	if err != nil {
		return "", errors.Retype(errors.ErrorRequestBuild, "building request", err)
	}
	resp, err := sender.Send(ctx, req)
	if err != nil {
		return "", errors.Retype(errors.ErrorTransport, "sending request", err)
	}
	defer resp.Close()
	c.progress.head(resp)

	var body bytes.Buffer
	for {
		f, err := resp.Frame(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Retype(errors.ErrorTransport, "reading response body", err)
		}
		if d, ok := f.Data(); ok {
			c.progress.chunk(d)
			body.Write(d)
		}
	}
	c.progress.done()
	level.Debug(logger).Log("msg", "response drained", "status", resp.StatusCode, "bytes", body.Len())

	resp.Close()
	sender.Close()
	c.awaitConn(connDone, logger)

	if !utf8.Valid(body.Bytes()) {
		return "", errors.New(errors.ErrorEncoding, "response body is not valid UTF-8", nil)
	}
	return body.String(), nil
}

// SendCompat is Send for callers that only understand strings: every failure
// becomes the placeholder.
func (c *HttpClient) SendCompat(ctx context.Context, rawURL, method string) string {
	s, err := c.Send(ctx, rawURL, method)
	if err != nil {
		return c.placeholder
	}
	return s
}

func (c *HttpClient) connect(ctx context.Context, tgt *target) (*bridge.Adapter, error) {
	tr, err := c.newTran(c.backend)
	if err != nil {
		return nil, errors.Retype(errors.ErrorConnect, "creating transport", err)
	}
	host := tgt.host
	if strings.EqualFold(c.backend, transport.BackendUnix) {
		host = c.unixSocket
	}
	if err := tr.Connect(ctx, host, tgt.port); err != nil {
		tr.Close()
		return nil, errors.Retype(errors.ErrorConnect, "connecting", err)
	}
	return bridge.New(tr), nil
}

// awaitConn gives the connection task a short window to report. Its outcome
// is logged, never returned.
func (c *HttpClient) awaitConn(done <-chan error, logger log.Logger) {
	if c.connGrace <= 0 {
		return
	}
	timer := time.NewTimer(c.connGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		if err == nil {
			level.Debug(logger).Log("msg", "connection closed cleanly")
		}
	case <-timer.C:
		level.Debug(logger).Log("msg", "connection task still running", "grace", c.connGrace)
	}
}
