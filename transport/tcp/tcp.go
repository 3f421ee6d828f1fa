// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport"
)

// Listener is a TCP listening port.
type Listener = transport.StreamListener

// Connector is a TCP client connector.
type Connector = transport.StreamConnector

// NewListener prepares a listener on iface:port. An empty iface binds all
// interfaces; port 0 picks a free port. Call StartListening to bind.
func NewListener(r *reactor.Reactor, port uint16, factory api.Factory, iface string) *Listener {
	addr := net.JoinHostPort(iface, strconv.Itoa(int(port)))
	return transport.NewStreamListener(r, Kind, factory, addr, func() (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(context.Background(), "tcp", addr)
	})
}

// Listen creates a listener and binds it. Bind failures are api.ErrBind.
func Listen(r *reactor.Reactor, port uint16, factory api.Factory, iface string) (*Listener, error) {
	l := NewListener(r, port, factory, iface)
	if err := l.StartListening(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewConnector prepares a connector to host:port without starting it.
// A zero timeout uses the reactor's default and a negative one disables the
// timeout. bindAddress, when not empty, is the local "host:port" to bind.
func NewConnector(r *reactor.Reactor, host string, port uint16, factory api.ClientFactory, timeout time.Duration, bindAddress string) *Connector {
	switch {
	case timeout == 0:
		timeout = r.Config().DefaultConnectTimeout
	case timeout < 0:
		timeout = 0
	}
	dial := func(ctx context.Context, address string) (net.Conn, error) {
		var d net.Dialer
		if bindAddress != "" {
			local, err := net.ResolveTCPAddr("tcp", bindAddress)
			if err != nil {
				return nil, fmt.Errorf("bind address %q: %w", bindAddress, err)
			}
			d.LocalAddr = local
		}
		return d.DialContext(ctx, "tcp", address)
	}
	c := transport.NewStreamConnector(r, Kind, factory, api.TCPAddress(host, port), timeout, dial)
	c.Resolve = true
	return c
}

// Connect creates a connector and starts connecting.
func Connect(r *reactor.Reactor, host string, port uint16, factory api.ClientFactory, timeout time.Duration, bindAddress string) *Connector {
	c := NewConnector(r, host, port, factory, timeout, bindAddress)
	c.StartConnecting()
	return c
}
