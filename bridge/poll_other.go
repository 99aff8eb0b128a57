//go:build !unix

package bridge

import (
	"errors"
	"syscall"
)

const ReadinessSupported = false

var errNoReadiness = errors.New("bridge: readiness reads are not supported on this platform")

// ReadReady is unavailable here; callers check ReadinessSupported first.
func ReadReady(rc syscall.RawConn, rb *ReadBuf) error {
	return errNoReadiness
}
