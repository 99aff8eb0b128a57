//go:build linux

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// UringTransportV2 implements Transport using godzie44/go-uring. Connect is a
// plain blocking connect; reads and writes go through the ring one SQE at a
// time.
type UringTransportV2 struct {
	ring   *uring.Ring
	fd     int
	file   *os.File
	mu     sync.RWMutex // shared by in-flight operations, exclusive in Close
	closed atomic.Bool
}

// NewUringTransportV2 creates a new TCP transport with io_uring (godzie44/go-uring)
func NewUringTransportV2() (*UringTransportV2, error) {
	ring, err := uring.New(uringQueueDepth)
	if err != nil {
		return nil, httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "failed to initialize io_uring", err)
	}

	return &UringTransportV2{
		ring: ring,
		fd:   -1,
	}, nil
}

// Connect establishes a TCP connection
func (t *UringTransportV2) Connect(ctx context.Context, host string, port uint16) error {
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
	if err := ctx.Err(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "connect cancelled", err)
	}
	fd, err := openStreamSocket(domain, false)
	if err != nil {
		return err
	}

	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", net.JoinHostPort(host, fmt.Sprint(port))), err)
	}

	t.fd = fd
	t.file = os.NewFile(uintptr(fd), "socket")
	return nil
}

// complete runs queue, submits the queued entry and waits for its result.
func (t *UringTransportV2) complete(queue func() error, submitMsg string) (int, error) {
	if err := queue(); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to queue "+submitMsg, err)
	}
	if _, err := t.ring.Submit(); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit "+submitMsg, err)
	}

	cqe, err := t.ring.WaitCQEvents(1)
	if err != nil {
		return 0, err
	}
	defer t.ring.SeenCQE(cqe)
	if err := cqe.Error(); err != nil {
		return 0, err
	}
	return int(cqe.Res), nil
}

// Write sends data over the connection using io_uring
func (t *UringTransportV2) Write(buf []byte) (int, error) {
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
		n, err := t.complete(func() error {
			return t.ring.QueueSQE(uring.Write(t.file.Fd(), buf[totalWritten:], 0), 0, 0)
		}, "write request")
		if err != nil {
			if _, ok := err.(*httperrors.HttpError); ok {
				return totalWritten, err
			}
			return totalWritten, classifyWriteError(err)
		}
		if n <= 0 {
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed during write", nil)
		}
		totalWritten += n
	}
	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *UringTransportV2) Read(buf []byte) (int, error) {
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

	n, err := t.complete(func() error {
		return t.ring.QueueSQE(uring.Read(t.file.Fd(), buf, 0), 0, 0)
	}, "read request")
	if err != nil {
		if _, ok := err.(*httperrors.HttpError); ok {
			return 0, err
		}
		return 0, classifyReadError(err)
	}
	if n == 0 {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", io.EOF)
	}
	return n, nil
}

// CloseWrite shuts down the sending side of the socket.
func (t *UringTransportV2) CloseWrite() error {
	if t.fd < 0 || t.closed.Load() {
		return nil
	}
	if err := syscall.Shutdown(t.fd, syscall.SHUT_WR); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "shutdown failed", err)
	}
	return nil
}

// Close closes the socket and the ring. Like UringTransport.Close it shuts
// the socket down first so a pending completion can be reaped.
func (t *UringTransportV2) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.fd >= 0 {
		syscall.Shutdown(t.fd, syscall.SHUT_RDWR)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.file != nil {
		if cerr := t.file.Close(); cerr != nil {
			err = httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "failed to close socket", cerr)
		}
	}
	t.ring.Close()
	return err
}
