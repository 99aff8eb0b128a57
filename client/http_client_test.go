package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/nczempin/httpc-oneshot/errors"
	"github.com/nczempin/httpc-oneshot/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawServer accepts one connection on l, reads the request head and writes
// the response pieces with a short pause between them.
func rawServer(t *testing.T, l net.Listener, pieces ...string) <-chan string {
	t.Helper()
	reqLine := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			reqLine <- ""
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		first := ""
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimRight(line, "\r\n")
			if first == "" {
				first = line
			}
			if line == "" {
				break
			}
		}
		reqLine <- first
		for _, p := range pieces {
			io.WriteString(conn, p)
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return reqLine
}

func tcpServer(t *testing.T, pieces ...string) (string, <-chan string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return "http://" + l.Addr().String(), rawServer(t, l, pieces...)
}

func TestSend_Hello(t *testing.T) {
	base, reqLine := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	c := NewHttpClient()
	body, err := c.Send(context.Background(), base+"/", "GET")
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
	assert.Equal(t, "GET "+base+"/ HTTP/1.1", <-reqLine)
}

func TestSend_FragmentStaysLocal(t *testing.T) {
	base, reqLine := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")

	body, err := NewHttpClient().Send(context.Background(), base+"/p?q=1#section", "GET")
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, "GET "+base+"/p?q=1 HTTP/1.1", <-reqLine)
}

func TestSend_UnsupportedMethodNeverConnects(t *testing.T) {
	var dialed atomic.Int32
	var logs bytes.Buffer
	c := NewHttpClient(
		WithLogger(log.NewLogfmtLogger(&logs)),
		WithTransportFactory(func(backend string) (transport.Transport, error) {
			dialed.Add(1)
			return transport.New(backend)
		}),
	)

	_, err := c.Send(context.Background(), "http://127.0.0.1:9/", "PUT")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorMethodParse))
	assert.Equal(t, int32(0), dialed.Load())
	assert.Contains(t, logs.String(), "method=PUT")
}

func TestSend_UnsupportedMethodShownOnProgress(t *testing.T) {
	var out bytes.Buffer
	c := NewHttpClient(WithProgress(&out, true))

	_, err := c.Send(context.Background(), "http://127.0.0.1:9/", "get")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorMethodParse))
	assert.Equal(t, "Invalid or unsupported method \"get\"\n", out.String())
}

func TestSend_ClosedPort(t *testing.T) {
	c := NewHttpClient()
	_, err := c.Send(context.Background(), "http://127.0.0.1:1/", "GET")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorConnect), "got %v", err)
	assert.Equal(t, errors.TransportErrorSocketConnectFailure, errors.TransportKindOf(err))
}

func TestSend_ChunkedConcatenates(t *testing.T) {
	base, _ := tcpServer(t,
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n",
		"2\r\nab\r\n", "2\r\ncd\r\n", "2\r\nef\r\n", "0\r\n\r\n")

	body, err := NewHttpClient().Send(context.Background(), base+"/chunked", "GET")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", body)
}

func TestSend_InvalidUTF8(t *testing.T) {
	base, _ := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n\xff\xfe")

	_, err := NewHttpClient().Send(context.Background(), base+"/", "GET")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorEncoding))
}

func TestSend_EveryMethodToken(t *testing.T) {
	for _, m := range []string{"GET", "POST", "DELETE", "PATCH"} {
		t.Run(m, func(t *testing.T) {
			base, reqLine := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
			body, err := NewHttpClient().Send(context.Background(), base+"/x?y=1", m)
			require.NoError(t, err)
			assert.Equal(t, "ok", body)
			assert.Equal(t, fmt.Sprintf("%s %s/x?y=1 HTTP/1.1", m, base), <-reqLine)
		})
	}
}

func TestSend_UrlErrors(t *testing.T) {
	c := NewHttpClient()
	for _, raw := range []string{
		"https://example.test/",
		"ftp://example.test/",
		"http:///nohost",
		"not a url at all",
		"http://example.test:0/",
		"http://example.test:99999/",
		"http://[::1/",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := c.Send(context.Background(), raw, "GET")
			assert.True(t, errors.IsKind(err, errors.ErrorUriParse), "got %v", err)
		})
	}
}

func TestSend_DefaultPort(t *testing.T) {
	var gotPort uint16
	c := NewHttpClient(WithTransportFactory(func(string) (transport.Transport, error) {
		return &recordingTransport{port: &gotPort}, nil
	}))
	_, err := c.Send(context.Background(), "http://example.test/", "GET")
	assert.True(t, errors.IsKind(err, errors.ErrorConnect))
	assert.Equal(t, uint16(80), gotPort)

	c = NewHttpClient(WithDefaultPort(8080), WithTransportFactory(func(string) (transport.Transport, error) {
		return &recordingTransport{port: &gotPort}, nil
	}))
	_, _ = c.Send(context.Background(), "http://example.test/", "GET")
	assert.Equal(t, uint16(8080), gotPort)
}

func TestSend_TruncatedBodyIsTransportError(t *testing.T) {
	base, _ := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc")
	_, err := NewHttpClient().Send(context.Background(), base+"/", "GET")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorTransport))
}

func TestSend_MalformedResponseIsTransportError(t *testing.T) {
	base, _ := tcpServer(t, "garbage\r\n\r\n")
	_, err := NewHttpClient().Send(context.Background(), base+"/", "GET")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrorTransport))
}

func TestSend_Progress(t *testing.T) {
	base, _ := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-Test: yes\r\n\r\nhello")

	var out bytes.Buffer
	c := NewHttpClient(WithProgress(&out, true))
	_, err := c.Send(context.Background(), base+"/", "GET")
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "Method is GET\n")
	assert.Contains(t, s, "Response: 200 OK\n")
	assert.Contains(t, s, "  X-Test: yes\n")
	assert.Contains(t, s, "hello")
	assert.True(t, strings.HasSuffix(s, "\n\nDone!\n"))
}

func TestSend_UnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oneshot.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close()
	reqLine := rawServer(t, l, "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nunix")

	c := NewHttpClient(WithTransport(transport.BackendUnix), WithUnixSocket(path))
	body, err := c.Send(context.Background(), "http://localhost/status", "GET")
	require.NoError(t, err)
	assert.Equal(t, "unix", body)
	assert.Equal(t, "GET http://localhost/status HTTP/1.1", <-reqLine)
}

func TestSendCompat(t *testing.T) {
	base, _ := tcpServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	c := NewHttpClient()
	assert.Equal(t, "hello", c.SendCompat(context.Background(), base+"/", "GET"))
	assert.Equal(t, DefaultPlaceholder, c.SendCompat(context.Background(), "http://127.0.0.1:1/", "GET"))
	assert.Equal(t, DefaultPlaceholder, c.SendCompat(context.Background(), base+"/", "PUT"))

	custom := NewHttpClient(WithPlaceholder("nope"))
	assert.Equal(t, "nope", custom.SendCompat(context.Background(), "http://127.0.0.1:1/", "GET"))
}

// recordingTransport remembers the dial port and refuses every connection.
type recordingTransport struct {
	port *uint16
}

func (r *recordingTransport) Connect(_ context.Context, _ string, port uint16) error {
	*r.port = port
	return errors.NewTransportError(errors.TransportErrorSocketConnectFailure, "refused", nil)
}

func (r *recordingTransport) Write(b []byte) (int, error) { return 0, io.ErrClosedPipe }
func (r *recordingTransport) Read(b []byte) (int, error)  { return 0, io.EOF }
func (r *recordingTransport) Close() error                { return nil }
