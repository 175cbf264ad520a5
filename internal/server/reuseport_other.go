//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package server

import (
	"errors"
	"syscall"
)

var errReusePortUnsupported = errors.New("SO_REUSEPORT is not supported on this platform")

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return errReusePortUnsupported
}
