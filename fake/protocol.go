// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"

	"github.com/momentics/hioload-reactor/api"
)

// Protocol records every notification it receives. The hooks run on the
// goroutine delivering the notification, the reactor for real transports.
type Protocol struct {
	mu        sync.Mutex
	transport api.Connection
	made      int
	data      []byte
	lost      []error
	readLost  int

	// Made is signalled on ConnectionMade, Lost receives each
	// ConnectionLost reason and Data each received chunk (copied).
	Made chan struct{}
	Lost chan error
	Data chan []byte

	OnMade func(p *Protocol)
	OnData func(p *Protocol, data []byte)
	OnLost func(p *Protocol, reason error)
}

// NewProtocol creates a recording protocol with buffered channels.
func NewProtocol() *Protocol {
	return &Protocol{
		Made: make(chan struct{}, 4),
		Lost: make(chan error, 4),
		Data: make(chan []byte, 256),
	}
}

func (p *Protocol) SetTransport(t api.Connection) {
	p.mu.Lock()
	p.transport = t
	p.mu.Unlock()
}

// Transport returns the bound connection.
func (p *Protocol) Transport() api.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}

func (p *Protocol) ConnectionMade() {
	p.mu.Lock()
	p.made++
	p.mu.Unlock()
	if p.OnMade != nil {
		p.OnMade(p)
	}
	p.Made <- struct{}{}
}

func (p *Protocol) DataReceived(data []byte) {
	cp := append([]byte(nil), data...)
	p.mu.Lock()
	p.data = append(p.data, cp...)
	p.mu.Unlock()
	if p.OnData != nil {
		p.OnData(p, data)
	}
	select {
	case p.Data <- cp:
	default:
	}
}

func (p *Protocol) ConnectionLost(reason error) {
	p.mu.Lock()
	p.lost = append(p.lost, reason)
	p.mu.Unlock()
	if p.OnLost != nil {
		p.OnLost(p, reason)
	}
	p.Lost <- reason
}

// Received returns everything received so far.
func (p *Protocol) Received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// MadeCount returns how often ConnectionMade fired.
func (p *Protocol) MadeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.made
}

// LostReasons returns every ConnectionLost reason in order.
func (p *Protocol) LostReasons() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lost...)
}

// HalfCloseProtocol is a Protocol that also accepts half-close.
type HalfCloseProtocol struct {
	*Protocol
	ReadLost chan struct{}
}

// NewHalfCloseProtocol creates a recording half-closeable protocol.
func NewHalfCloseProtocol() *HalfCloseProtocol {
	return &HalfCloseProtocol{Protocol: NewProtocol(), ReadLost: make(chan struct{}, 1)}
}

func (p *HalfCloseProtocol) ReadConnectionLost() {
	p.mu.Lock()
	p.readLost++
	p.mu.Unlock()
	p.ReadLost <- struct{}{}
}

// Factory is a recording api.ClientFactory with lifecycle hooks.
type Factory struct {
	mu        sync.Mutex
	protocols []*Protocol
	addrs     []api.Address
	started   int
	stopped   int
	attempts  int

	// Build overrides protocol construction; returning nil refuses.
	Build func(addr api.Address) api.Protocol

	// Built receives every recording protocol the factory hands out,
	// including those returned by Build.
	Built  chan *Protocol
	Failed chan error
	Lost   chan error

	OnFailed func(c api.Connector, reason error)
	OnLost   func(c api.Connector, reason error)
}

// NewFactory creates a recording factory.
func NewFactory() *Factory {
	return &Factory{
		Built:  make(chan *Protocol, 64),
		Failed: make(chan error, 16),
		Lost:   make(chan error, 16),
	}
}

func (f *Factory) BuildProtocol(addr api.Address) api.Protocol {
	f.mu.Lock()
	f.addrs = append(f.addrs, addr)
	build := f.Build
	f.mu.Unlock()
	if build == nil {
		p := NewProtocol()
		f.record(p)
		return p
	}
	p := build(addr)
	switch rp := p.(type) {
	case *Protocol:
		f.record(rp)
	case *HalfCloseProtocol:
		f.record(rp.Protocol)
	}
	return p
}

func (f *Factory) record(p *Protocol) {
	f.mu.Lock()
	f.protocols = append(f.protocols, p)
	f.mu.Unlock()
	f.Built <- p
}

func (f *Factory) ClientConnectionFailed(c api.Connector, reason error) {
	if f.OnFailed != nil {
		f.OnFailed(c, reason)
	}
	f.Failed <- reason
}

func (f *Factory) ClientConnectionLost(c api.Connector, reason error) {
	if f.OnLost != nil {
		f.OnLost(c, reason)
	}
	f.Lost <- reason
}

func (f *Factory) DoStart() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}

func (f *Factory) DoStop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *Factory) StartedConnecting(api.Connector) {
	f.mu.Lock()
	f.attempts++
	f.mu.Unlock()
}

// Counts returns how often DoStart, DoStop and StartedConnecting fired.
func (f *Factory) Counts() (started, stopped, attempts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.attempts
}

// Protocols returns every recording protocol built so far.
func (f *Factory) Protocols() []*Protocol {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Protocol(nil), f.protocols...)
}

// Addresses returns the peer addresses passed to BuildProtocol.
func (f *Factory) Addresses() []api.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Address(nil), f.addrs...)
}
