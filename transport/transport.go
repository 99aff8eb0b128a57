package transport

import (
	"context"
	"fmt"
)

// Transport defines the interface for network I/O operations.
// Implementations include TCP, Unix domain sockets and two io_uring backends.
// A Transport carries exactly one connection and is not reused after Close.
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// For Unix sockets, the host parameter is the socket path and port is ignored.
	Connect(ctx context.Context, host string, port uint16) error

	// Write sends data to the connected peer.
	// Returns the number of bytes written or an error.
	Write(buf []byte) (int, error)

	// Read receives data from the connected peer.
	// Returns the number of bytes read or an error.
	Read(buf []byte) (int, error)

	// Close closes the connection and releases backend resources.
	Close() error
}

// Backend names accepted by New.
const (
	BackendTCP     = "tcp"
	BackendUnix    = "unix"
	BackendUring   = "uring"
	BackendUringV2 = "uring-v2"
)

// Backends lists every backend name New understands.
var Backends = []string{BackendTCP, BackendUnix, BackendUring, BackendUringV2}

// New returns an unconnected Transport for the named backend.
func New(backend string) (Transport, error) {
	switch backend {
	case "", BackendTCP:
		return NewTcpTransport(), nil
	case BackendUnix:
		return NewUnixTransport(), nil
	case BackendUring:
		t, err := NewUringTransport()
		if err != nil {
			return nil, err
		}
		return t, nil
	case BackendUringV2:
		t, err := NewUringTransportV2()
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("transport: unknown backend %q", backend)
	}
}
