//go:build !unix

// File: transport/errno_other.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"syscall"

	"github.com/momentics/hioload-reactor/api"
)

func errnoCode(err error) (api.ErrorCode, bool) {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return 0, false
	}
	switch errno {
	case syscall.ECONNREFUSED:
		return api.ErrCodeConnectionRefused, true
	case syscall.ECONNRESET:
		return api.ErrCodeConnectionReset, true
	case syscall.ECONNABORTED:
		return api.ErrCodeConnectionAborted, true
	case syscall.ETIMEDOUT:
		return api.ErrCodeConnectTimeout, true
	}
	return 0, false
}

func classifyAccept(err error) acceptRetry {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return acceptFatal
	}
	switch errno {
	case syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS:
		return acceptLater
	case syscall.ECONNABORTED, syscall.EINTR:
		return acceptNow
	}
	return acceptFatal
}
