// File: protocol/base.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/momentics/hioload-reactor/api"
)

// BaseProtocol stores the transport and ignores every notification. Embed
// it and override the callbacks you need.
type BaseProtocol struct {
	Transport api.Connection
	Connected bool
}

func (p *BaseProtocol) SetTransport(t api.Connection) { p.Transport = t }

func (p *BaseProtocol) ConnectionMade() { p.Connected = true }

func (p *BaseProtocol) DataReceived([]byte) {}

func (p *BaseProtocol) ConnectionLost(error) { p.Connected = false }

// FactoryFunc adapts a function to api.Factory.
type FactoryFunc func(addr api.Address) api.Protocol

func (f FactoryFunc) BuildProtocol(addr api.Address) api.Protocol {
	return f(addr)
}

// ServerFactory builds protocols with Build and counts the listeners and
// connectors using it. OnStart runs when the first one starts and OnStop
// when the last one stops.
type ServerFactory struct {
	Build   func(addr api.Address) api.Protocol
	OnStart func()
	OnStop  func()

	numPorts int
}

// BuildProtocol calls Build; a factory without Build refuses connections.
func (f *ServerFactory) BuildProtocol(addr api.Address) api.Protocol {
	if f.Build == nil {
		return nil
	}
	return f.Build(addr)
}

func (f *ServerFactory) DoStart() {
	if f.numPorts == 0 && f.OnStart != nil {
		f.OnStart()
	}
	f.numPorts++
}

func (f *ServerFactory) DoStop() {
	if f.numPorts == 0 {
		return
	}
	f.numPorts--
	if f.numPorts == 0 && f.OnStop != nil {
		f.OnStop()
	}
}

// Ports returns the number of listeners and connectors currently started.
func (f *ServerFactory) Ports() int {
	return f.numPorts
}

// ClientFactoryBase is a ServerFactory that also implements
// api.ClientFactory, forwarding outcomes to optional hooks.
type ClientFactoryBase struct {
	ServerFactory

	OnStartedConnecting func(c api.Connector)
	OnFailed            func(c api.Connector, reason error)
	OnLost              func(c api.Connector, reason error)
}

func (f *ClientFactoryBase) StartedConnecting(c api.Connector) {
	if f.OnStartedConnecting != nil {
		f.OnStartedConnecting(c)
	}
}

func (f *ClientFactoryBase) ClientConnectionFailed(c api.Connector, reason error) {
	if f.OnFailed != nil {
		f.OnFailed(c, reason)
	}
}

func (f *ClientFactoryBase) ClientConnectionLost(c api.Connector, reason error) {
	if f.OnLost != nil {
		f.OnLost(c, reason)
	}
}

var (
	_ api.Factory            = FactoryFunc(nil)
	_ api.FactoryLifecycle   = (*ServerFactory)(nil)
	_ api.ClientFactory      = (*ClientFactoryBase)(nil)
	_ api.ConnectingObserver = (*ClientFactoryBase)(nil)
)
