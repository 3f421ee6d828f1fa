// File: endpoints/client.go
// Author: momentics <momentics@gmail.com>

package endpoints

import (
	"net"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport/tcp"
	"github.com/momentics/hioload-reactor/transport/unix"
)

// ClientEndpoint makes a single outgoing connection.
type ClientEndpoint interface {
	// Connect builds one protocol with factory. The Deferred fires with
	// that api.Protocol once ConnectionMade has run, or fails with the
	// connect error. Cancelling it stops the attempt. It must be called
	// on the reactor goroutine.
	Connect(factory api.Factory) *deferred.Deferred
}

// TCPClientEndpoint connects to host:port.
type TCPClientEndpoint struct {
	Reactor *reactor.Reactor
	Host    string
	Port    uint16
	// Timeout of zero uses the reactor default.
	Timeout time.Duration
	// BindAddress is the local "host" or "host:port" to bind, if any.
	BindAddress string
}

func (e *TCPClientEndpoint) Connect(factory api.Factory) *deferred.Deferred {
	return connectWith(factory, func(cf api.ClientFactory) api.Connector {
		return tcp.Connect(e.Reactor, e.Host, e.Port, cf, e.Timeout, e.BindAddress)
	})
}

// UNIXClientEndpoint connects to a Unix-domain socket.
type UNIXClientEndpoint struct {
	Reactor *reactor.Reactor
	Path    string
	Timeout time.Duration
}

func (e *UNIXClientEndpoint) Connect(factory api.Factory) *deferred.Deferred {
	return connectWith(factory, func(cf api.ClientFactory) api.Connector {
		return unix.Connect(e.Reactor, e.Path, cf, e.Timeout)
	})
}

// connectWith runs one attempt through a wrapping factory that resolves
// the returned Deferred.
func connectWith(factory api.Factory, start func(api.ClientFactory) api.Connector) *deferred.Deferred {
	wf := &wrappingFactory{factory: factory}
	wf.d = deferred.NewWithCanceller(func(*deferred.Deferred) {
		if wf.connector != nil {
			wf.connector.StopConnecting()
		}
	})
	wf.connector = start(wf)
	return wf.d
}

type wrappingFactory struct {
	factory   api.Factory
	connector api.Connector
	d         *deferred.Deferred
}

func (f *wrappingFactory) BuildProtocol(addr api.Address) api.Protocol {
	p := f.factory.BuildProtocol(addr)
	if p == nil {
		return nil
	}
	w := &wrappingProtocol{Protocol: p, d: f.d}
	if hc, ok := p.(api.HalfCloseableProtocol); ok {
		return &halfCloseWrapper{wrappingProtocol: w, hc: hc}
	}
	return w
}

func (f *wrappingFactory) ClientConnectionFailed(_ api.Connector, reason error) {
	if !f.d.Called() {
		f.d.Errback(reason)
	}
}

// ClientConnectionLost only matters when the connection dropped before
// ConnectionMade returned.
func (f *wrappingFactory) ClientConnectionLost(_ api.Connector, reason error) {
	if !f.d.Called() {
		f.d.Errback(reason)
	}
}

func (f *wrappingFactory) DoStart() {
	if fl, ok := f.factory.(api.FactoryLifecycle); ok {
		fl.DoStart()
	}
}

func (f *wrappingFactory) DoStop() {
	if fl, ok := f.factory.(api.FactoryLifecycle); ok {
		fl.DoStop()
	}
}

// wrappingProtocol fires the connect Deferred after ConnectionMade.
type wrappingProtocol struct {
	api.Protocol
	d *deferred.Deferred
}

func (p *wrappingProtocol) ConnectionMade() {
	p.Protocol.ConnectionMade()
	if !p.d.Called() {
		p.d.Callback(p.Protocol)
	}
}

type halfCloseWrapper struct {
	*wrappingProtocol
	hc api.HalfCloseableProtocol
}

func (p *halfCloseWrapper) ReadConnectionLost() {
	p.hc.ReadConnectionLost()
}

// ClientFromString parses a client description such as
// "tcp:host=example.com:port=80:timeout=5" or "unix:path=/run/app.sock".
func ClientFromString(r *reactor.Reactor, desc string) (ClientEndpoint, error) {
	d, err := parse(desc)
	if err != nil {
		return nil, err
	}
	switch d.kind {
	case "tcp":
		return tcpClient(r, d)
	case "unix":
		return unixClient(r, d)
	}
	return nil, invalid(desc, "unknown endpoint type %q", d.kind)
}

func tcpClient(r *reactor.Reactor, d *description) (ClientEndpoint, error) {
	host, _ := d.value(0, "host")
	if host == "" {
		return nil, invalid(d.raw, "missing host")
	}
	port, ok, err := d.port(1, "port")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid(d.raw, "missing port")
	}
	e := &TCPClientEndpoint{Reactor: r, Host: host, Port: port}
	if e.Timeout, err = d.seconds("timeout"); err != nil {
		return nil, err
	}
	if bind, ok := d.value(-1, "bindAddress"); ok && bind != "" {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			bind = net.JoinHostPort(bind, "0")
		}
		e.BindAddress = bind
	}
	if err := d.finish(2); err != nil {
		return nil, err
	}
	return e, nil
}

func unixClient(r *reactor.Reactor, d *description) (ClientEndpoint, error) {
	path, _ := d.value(0, "path")
	if path == "" {
		return nil, invalid(d.raw, "missing socket path")
	}
	e := &UNIXClientEndpoint{Reactor: r, Path: path}
	var err error
	if e.Timeout, err = d.seconds("timeout"); err != nil {
		return nil, err
	}
	if err := d.finish(1); err != nil {
		return nil, err
	}
	return e, nil
}
