package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/nczempin/httpc-oneshot/bridge"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// TcpTransport implements the Transport interface using TCP sockets.
// Besides plain Read it offers a readiness-driven PollRead.
type TcpTransport struct {
	conn   *net.TCPConn
	raw    syscall.RawConn
	closed atomic.Bool
}

// NewTcpTransport creates a new TcpTransport instance
func NewTcpTransport() *TcpTransport {
	return &TcpTransport{}
}

// Connect establishes a TCP connection to the specified host and port
func (t *TcpTransport) Connect(ctx context.Context, host string, port uint16) error {
	if t.conn != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}
	addr := net.JoinHostPort(host, fmt.Sprint(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyDialError(addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "not a TCP connection", nil)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to set TCP_NODELAY", err)
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		tcpConn.Close()
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to access raw socket", err)
	}

	t.conn = tcpConn
	t.raw = raw
	return nil
}

// classifyDialError maps dial failures onto transport sub-kinds.
func classifyDialError(addr string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return httperrors.NewTransportError(httperrors.TransportErrorDnsFailure, fmt.Sprintf("failed to resolve %s", addr), err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, fmt.Sprintf("connection refused by %s", addr), err)
	}
	return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, fmt.Sprintf("failed to connect to %s", addr), err)
}

// Write sends data over the TCP connection
func (t *TcpTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classifyWriteError(err)
	}
	return n, nil
}

// WriteVectored sends bufs with a single gather write where the OS allows it.
func (t *TcpTransport) WriteVectored(bufs [][]byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}
	nb := net.Buffers(bufs)
	n, err := nb.WriteTo(t.conn)
	if err != nil {
		return int(n), classifyWriteError(err)
	}
	return int(n), nil
}

func classifyWriteError(err error) error {
	// Check for broken pipe or connection reset
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "peer closed the connection", err)
	}
	return httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "write failed", err)
}

// Read receives data from the TCP connection. A clean close by the peer is
// reported as a ConnectionClosed error that unwraps to io.EOF.
func (t *TcpTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		return n, classifyReadError(err)
	}
	return n, nil
}

// PollRead implements bridge.PollReader with a readiness-driven read.
func (t *TcpTransport) PollRead(rb *bridge.ReadBuf) error {
	if t.conn == nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}
	return pollConn(t.conn, t.raw, rb)
}

// pollConn reads into rb through the netpoller when the platform allows it
// and through a plain Read otherwise.
func pollConn(conn net.Conn, raw syscall.RawConn, rb *bridge.ReadBuf) error {
	if !bridge.ReadinessSupported {
		n, err := conn.Read(rb.Unfilled())
		if aerr := rb.Advance(n); aerr != nil {
			return aerr
		}
		if err != nil {
			return classifyReadError(err)
		}
		return nil
	}
	if err := bridge.ReadReady(raw, rb); err != nil {
		if errors.Is(err, bridge.ErrInvalidRead) {
			return err
		}
		return classifyReadError(err)
	}
	return nil
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", err)
	}
	return httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "read failed", err)
}

// CloseWrite shuts down the sending side of the connection.
func (t *TcpTransport) CloseWrite() error {
	if t.conn == nil || t.closed.Load() {
		return nil
	}
	if err := t.conn.CloseWrite(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "shutdown failed", err)
	}
	return nil
}

// Close closes the TCP connection
func (t *TcpTransport) Close() error {
	if t.conn == nil || !t.closed.CompareAndSwap(false, true) {
		return nil // Idempotent close
	}

	if err := t.conn.Close(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "close failed", err)
	}
	return nil
}
