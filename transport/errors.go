// File: transport/errors.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"io"
	"net"

	"github.com/momentics/hioload-reactor/api"
)

// Classify maps a socket error onto the api error taxonomy, keeping the
// original error as the cause.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, io.EOF):
		return api.Wrap(api.ErrCodeConnectionDone, err, "")
	case errors.Is(err, net.ErrClosed):
		return api.Wrap(api.ErrCodeConnectionLost, err, "")
	}
	if code, ok := errnoCode(err); ok {
		return api.Wrap(code, err, "")
	}
	return api.Wrap(api.ErrCodeConnectionLost, err, "")
}

// acceptRetry tells the accept loop how to treat an Accept error.
type acceptRetry int

const (
	acceptFatal acceptRetry = iota
	acceptNow
	acceptLater
)
