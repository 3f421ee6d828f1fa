// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package unix

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport"
)

// Listener is a Unix-domain listening socket.
type Listener = transport.StreamListener

// Connector is a Unix-domain client connector.
type Connector = transport.StreamConnector

// Connection is a Unix-domain stream connection.
type Connection struct {
	*transport.Conn
}

// Kind plugs Unix-domain connections into the shared transport.
var Kind = transport.Kind{
	Name: "unix",
	Wrap: func(c *transport.Conn) api.Connection {
		return &Connection{Conn: c}
	},
}

// NewListener prepares a listener on path. A non-zero mode is applied to
// the socket file after binding. The file is removed when the listener
// stops.
func NewListener(r *reactor.Reactor, path string, factory api.Factory, mode os.FileMode) *Listener {
	return transport.NewStreamListener(r, Kind, factory, path, func() (net.Listener, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(context.Background(), "unix", path)
		if err != nil {
			return nil, err
		}
		if mode != 0 {
			if err := os.Chmod(path, mode); err != nil {
				_ = ln.Close()
				return nil, err
			}
		}
		return ln, nil
	})
}

// Listen creates a listener and binds it. Bind failures are api.ErrBind.
func Listen(r *reactor.Reactor, path string, factory api.Factory, mode os.FileMode) (*Listener, error) {
	l := NewListener(r, path, factory, mode)
	if err := l.StartListening(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewConnector prepares a connector to path without starting it. A zero
// timeout uses the reactor's default and a negative one disables it.
func NewConnector(r *reactor.Reactor, path string, factory api.ClientFactory, timeout time.Duration) *Connector {
	switch {
	case timeout == 0:
		timeout = r.Config().DefaultConnectTimeout
	case timeout < 0:
		timeout = 0
	}
	dial := func(ctx context.Context, address string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", address)
	}
	return transport.NewStreamConnector(r, Kind, factory, api.UnixAddress(path), timeout, dial)
}

// Connect creates a connector and starts connecting.
func Connect(r *reactor.Reactor, path string, factory api.ClientFactory, timeout time.Duration) *Connector {
	c := NewConnector(r, path, factory, timeout)
	c.StartConnecting()
	return c
}
