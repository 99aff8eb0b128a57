//go:build !linux

package transport

import (
	httperrors "github.com/nczempin/httpc-oneshot/errors"
)

// UringTransport is only available on Linux.
type UringTransport struct{ Transport }

// UringTransportV2 is only available on Linux.
type UringTransportV2 struct{ Transport }

func NewUringTransport() (*UringTransport, error) {
	return nil, httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "io_uring requires linux", nil)
}

func NewUringTransportV2() (*UringTransportV2, error) {
	return nil, httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "io_uring requires linux", nil)
}
