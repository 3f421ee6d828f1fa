// File: endpoints/server.go
// Author: momentics <momentics@gmail.com>

package endpoints

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport/tcp"
	"github.com/momentics/hioload-reactor/transport/unix"
)

// ServerEndpoint starts listening for a factory.
type ServerEndpoint interface {
	// Listen binds and starts accepting. The Deferred fires with the
	// api.Listener, or fails with an api.ErrBind error. It must be called
	// on the reactor goroutine.
	Listen(factory api.Factory) *deferred.Deferred
}

// TCPServerEndpoint listens on a TCP port.
type TCPServerEndpoint struct {
	Reactor   *reactor.Reactor
	Port      uint16
	Interface string
	// Backlog is accepted for compatibility; the OS default applies.
	Backlog int
}

func (e *TCPServerEndpoint) Listen(factory api.Factory) *deferred.Deferred {
	return listened(tcp.Listen(e.Reactor, e.Port, factory, e.Interface))
}

// UNIXServerEndpoint listens on a Unix-domain socket path.
type UNIXServerEndpoint struct {
	Reactor *reactor.Reactor
	Path    string
	Mode    os.FileMode
}

func (e *UNIXServerEndpoint) Listen(factory api.Factory) *deferred.Deferred {
	return listened(unix.Listen(e.Reactor, e.Path, factory, e.Mode))
}

func listened(l api.Listener, err error) *deferred.Deferred {
	if err != nil {
		return deferred.Fail(err)
	}
	return deferred.Succeed(l)
}

// ServerFromString parses a server description such as "tcp:28001" or
// "unix:/run/app.sock:mode=660".
func ServerFromString(r *reactor.Reactor, desc string) (ServerEndpoint, error) {
	d, err := parse(desc)
	if err != nil {
		return nil, err
	}
	switch d.kind {
	case "tcp":
		return tcpServer(r, d)
	case "unix":
		return unixServer(r, d)
	}
	return nil, invalid(desc, "unknown endpoint type %q", d.kind)
}

func tcpServer(r *reactor.Reactor, d *description) (ServerEndpoint, error) {
	port, ok, err := d.port(0, "port")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid(d.raw, "missing port")
	}
	e := &TCPServerEndpoint{Reactor: r, Port: port}
	e.Interface, _ = d.value(-1, "interface")
	if v, ok := d.value(-1, "backlog"); ok {
		if e.Backlog, err = strconv.Atoi(v); err != nil || e.Backlog <= 0 {
			return nil, invalid(d.raw, "bad backlog %q", v)
		}
		logrus.WithFields(logrus.Fields{
			"function": "ServerFromString",
			"backlog":  e.Backlog,
		}).Debug("Listen backlog is left to the OS")
	}
	if err := d.finish(1); err != nil {
		return nil, err
	}
	return e, nil
}

func unixServer(r *reactor.Reactor, d *description) (ServerEndpoint, error) {
	path, ok := d.value(0, "address")
	if !ok || path == "" {
		return nil, invalid(d.raw, "missing socket path")
	}
	e := &UNIXServerEndpoint{Reactor: r, Path: path, Mode: 0o666}
	if v, ok := d.value(-1, "mode"); ok {
		mode, err := strconv.ParseUint(v, 8, 32)
		if err != nil || mode > 0o777 {
			return nil, invalid(d.raw, "bad mode %q", v)
		}
		e.Mode = os.FileMode(mode)
	}
	if err := d.finish(1); err != nil {
		return nil, err
	}
	return e, nil
}
