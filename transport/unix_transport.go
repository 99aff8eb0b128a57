package transport

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/nczempin/httpc-oneshot/bridge"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// UnixTransport implements the Transport interface using Unix domain sockets.
// The request still names its host in the URL; only the socket path decides
// where the bytes go.
type UnixTransport struct {
	conn   *net.UnixConn
	raw    syscall.RawConn
	closed atomic.Bool
}

// NewUnixTransport creates a new UnixTransport instance
func NewUnixTransport() *UnixTransport {
	return &UnixTransport{}
}

// Connect establishes a Unix domain socket connection to the specified path.
// The port parameter is ignored for Unix sockets.
func (t *UnixTransport) Connect(ctx context.Context, path string, port uint16) error {
	if t.conn != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}
	if path == "" {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "empty socket path", nil)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "failed to connect to "+path, err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "not a unix connection", nil)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		unixConn.Close()
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to access raw socket", err)
	}

	t.conn = unixConn
	t.raw = raw
	return nil
}

// Write sends data over the Unix domain socket
func (t *UnixTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classifyWriteError(err)
	}
	return n, nil
}

// Read receives data from the Unix domain socket
func (t *UnixTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		return n, classifyReadError(err)
	}
	return n, nil
}

// PollRead implements bridge.PollReader.
func (t *UnixTransport) PollRead(rb *bridge.ReadBuf) error {
	if t.conn == nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}
	return pollConn(t.conn, t.raw, rb)
}

// CloseWrite shuts down the sending side of the socket.
func (t *UnixTransport) CloseWrite() error {
	if t.conn == nil || t.closed.Load() {
		return nil
	}
	if err := t.conn.CloseWrite(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "shutdown failed", err)
	}
	return nil
}

// Close closes the Unix domain socket connection
func (t *UnixTransport) Close() error {
	if t.conn == nil || !t.closed.CompareAndSwap(false, true) {
		return nil // Idempotent close
	}

	if err := t.conn.Close(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "close failed", err)
	}
	return nil
}
