// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"net"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

// Connection is a TCP stream connection. Socket options are read from and
// written to the kernel on every call.
type Connection struct {
	*transport.Conn
}

var _ api.TCPConnection = (*Connection)(nil)

// NoDelay reports whether Nagle's algorithm is disabled.
func (c *Connection) NoDelay() (bool, error) {
	return transport.GetsockoptBool(c.Socket(), transport.LevelTCP, transport.OptNoDelay)
}

// SetNoDelay toggles TCP_NODELAY.
func (c *Connection) SetNoDelay(enabled bool) error {
	return transport.SetsockoptBool(c.Socket(), transport.LevelTCP, transport.OptNoDelay, enabled)
}

// KeepAlive reports whether SO_KEEPALIVE is set.
func (c *Connection) KeepAlive() (bool, error) {
	return transport.GetsockoptBool(c.Socket(), transport.LevelSocket, transport.OptKeepAlive)
}

// SetKeepAlive toggles SO_KEEPALIVE.
func (c *Connection) SetKeepAlive(enabled bool) error {
	return transport.SetsockoptBool(c.Socket(), transport.LevelSocket, transport.OptKeepAlive, enabled)
}

// Kind plugs TCP connections into the shared transport. Aborts set a zero
// linger so the peer sees a reset instead of an orderly close.
var Kind = transport.Kind{
	Name: "tcp",
	Wrap: func(c *transport.Conn) api.Connection {
		return &Connection{Conn: c}
	},
	PrepareAbort: func(sock net.Conn) {
		if tc, ok := sock.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
	},
}
