//go:build unix

// File: transport/errno_unix.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

func errnoCode(err error) (api.ErrorCode, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return 0, false
	}
	switch errno {
	case unix.ECONNREFUSED:
		return api.ErrCodeConnectionRefused, true
	case unix.ECONNRESET, unix.EPIPE:
		return api.ErrCodeConnectionReset, true
	case unix.ECONNABORTED:
		return api.ErrCodeConnectionAborted, true
	case unix.ETIMEDOUT:
		return api.ErrCodeConnectTimeout, true
	case unix.ENOTCONN:
		return api.ErrCodeNotConnected, true
	}
	return 0, false
}

// classifyAccept sorts Accept errors: descriptor or memory exhaustion
// backs off, interrupted or aborted handshakes retry at once.
func classifyAccept(err error) acceptRetry {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return acceptFatal
	}
	switch errno {
	case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		return acceptLater
	case unix.ECONNABORTED, unix.EAGAIN, unix.EINTR:
		return acceptNow
	}
	return acceptFatal
}
