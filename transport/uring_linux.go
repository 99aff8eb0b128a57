//go:build linux

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/iceber/iouring-go"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// uringQueueDepth is the submission queue size for both io_uring backends.
const uringQueueDepth = 32

// UringTransport implements Transport on top of iceber/iouring-go. Every
// operation is submitted to the ring and the caller waits on its completion
// channel, so there is no readiness read here.
type UringTransport struct {
	iour   *iouring.IOURing
	fd     int
	mu     sync.RWMutex // shared by in-flight operations, exclusive in Close
	closed atomic.Bool
}

// NewUringTransport creates a new TCP transport with io_uring
func NewUringTransport() (*UringTransport, error) {
	iour, err := iouring.New(uringQueueDepth)
	if err != nil {
		return nil, httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "failed to initialize io_uring", err)
	}

	return &UringTransport{
		iour: iour,
		fd:   -1,
	}, nil
}

// resolveSockaddr looks host up and returns the first address as a raw
// socket address together with its address family.
func resolveSockaddr(ctx context.Context, host string, port uint16) (syscall.Sockaddr, int, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil || len(ips) == 0 {
		return nil, 0, httperrors.NewTransportError(httperrors.TransportErrorDnsFailure, fmt.Sprintf("failed to resolve %s", addr), err)
	}

	ip := ips[0]
	if ip4 := ip.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: int(port)}
		copy(sa4.Addr[:], ip4)
		return sa4, syscall.AF_INET, nil
	}
	sa6 := &syscall.SockaddrInet6{Port: int(port)}
	copy(sa6.Addr[:], ip.To16())
	return sa6, syscall.AF_INET6, nil
}

// openStreamSocket creates a TCP socket with TCP_NODELAY set.
func openStreamSocket(domain int, nonblock bool) (int, error) {
	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to create socket", err)
	}
	if nonblock {
		if err := syscall.SetNonblock(fd, true); err != nil {
			syscall.Close(fd)
			return -1, httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to set non-blocking mode", err)
		}
	}
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return -1, httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to set TCP_NODELAY", err)
	}
	return fd, nil
}

// Connect establishes a TCP connection using io_uring
func (t *UringTransport) Connect(ctx context.Context, host string, port uint16) error {
	if t.fd >= 0 {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}
	if t.closed.Load() {
		return httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "transport already closed", nil)
	}

	sa, domain, err := resolveSockaddr(ctx, host, port)
	if err != nil {
		return err
	}
	fd, err := openStreamSocket(domain, true)
	if err != nil {
		return err
	}

	prep, err := iouring.Connect(fd, sa)
	if err != nil {
		syscall.Close(fd)
		return httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to prepare connect request", err)
	}
	ch := make(chan iouring.Result, 1)
	if _, err := t.iour.SubmitRequest(prep, ch); err != nil {
		syscall.Close(fd)
		return httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit connect request", err)
	}

	select {
	case result := <-ch:
		// connect completions carry only an error, no int value
		if err := result.Err(); err != nil {
			syscall.Close(fd)
			return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure,
				fmt.Sprintf("failed to connect to %s", net.JoinHostPort(host, fmt.Sprint(port))), err)
		}
	case <-ctx.Done():
		syscall.Close(fd)
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "connect cancelled", ctx.Err())
	}

	t.fd = fd
	return nil
}

// Write sends all of buf, resubmitting after short sends.
func (t *UringTransport) Write(buf []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fd < 0 {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}
	if t.closed.Load() {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed", nil)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		ch := make(chan iouring.Result, 1)
		if _, err := t.iour.SubmitRequest(iouring.Send(t.fd, buf[totalWritten:], 0), ch); err != nil {
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit write request", err)
		}

		result := <-ch
		n, err := result.ReturnInt()
		if err != nil {
			return totalWritten, classifyWriteError(err)
		}
		if n <= 0 {
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed during write", nil)
		}
		totalWritten += n
	}
	return totalWritten, nil
}

// Read waits for one receive completion.
func (t *UringTransport) Read(buf []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fd < 0 {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}
	if t.closed.Load() {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ch := make(chan iouring.Result, 1)
	if _, err := t.iour.SubmitRequest(iouring.Recv(t.fd, buf, 0), ch); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit read request", err)
	}

	result := <-ch
	n, err := result.ReturnInt()
	if err != nil {
		return 0, classifyReadError(err)
	}
	if n == 0 {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", io.EOF)
	}
	return n, nil
}

// CloseWrite shuts down the sending side of the socket.
func (t *UringTransport) CloseWrite() error {
	if t.fd < 0 || t.closed.Load() {
		return nil
	}
	if err := syscall.Shutdown(t.fd, syscall.SHUT_WR); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "shutdown failed", err)
	}
	return nil
}

// Close closes the socket and releases the ring. It may run while another
// goroutine waits on a completion: the socket is shut down first so that
// operation finishes, then the ring is released.
func (t *UringTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.fd >= 0 {
		syscall.Shutdown(t.fd, syscall.SHUT_RDWR)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.fd >= 0 {
		if cerr := syscall.Close(t.fd); cerr != nil {
			err = httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "failed to close socket", cerr)
		}
	}
	t.iour.Close()
	return err
}
