//go:build unix

package bridge

import (
	"io"
	"syscall"
)

// ReadinessSupported reports whether ReadReady performs a real
// readiness-driven read on this platform.
const ReadinessSupported = true

// ReadReady reads from the descriptor behind rc into rb. When the socket has
// no data yet the callback reports "not done" and the runtime parks the
// goroutine on the netpoller until the descriptor becomes readable.
func ReadReady(rc syscall.RawConn, rb *ReadBuf) error {
	if rb.Remaining() == 0 {
		return nil
	}
	var (
		n    int
		rerr error
	)
	err := rc.Read(func(fd uintptr) bool {
		for {
			n, rerr = syscall.Read(int(fd), rb.Unfilled())
			if rerr != syscall.EINTR {
				break
			}
		}
		return rerr != syscall.EAGAIN && rerr != syscall.EWOULDBLOCK
	})
	if err != nil {
		return err
	}
	if rerr != nil {
		return rerr
	}
	if n == 0 {
		return io.EOF
	}
	return rb.Advance(n)
}
