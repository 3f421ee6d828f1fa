// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing protocols and factories.
// Provides predictable, controllable behavior for the core interfaces.

package fake

import (
	"bytes"
	"sync"

	"github.com/momentics/hioload-reactor/api"
)

// Connection is an in-memory api.TCPConnection. It records writes and
// delivers ConnectionLost synchronously; no reactor is involved.
type Connection struct {
	mu          sync.Mutex
	proto       api.Protocol
	state       api.TransportState
	producer    api.ProducerState
	written     bytes.Buffer
	writeClosed bool
	noDelay     bool
	keepAlive   bool
	local       api.Address
	remote      api.Address
	lostReason  error
}

var _ api.TCPConnection = (*Connection)(nil)

// NewConnection creates a connection between local and remote.
func NewConnection(local, remote api.Address) *Connection {
	return &Connection{
		state:  api.StateConnecting,
		local:  local,
		remote: remote,
	}
}

// Connect binds p and fires ConnectionMade.
func (c *Connection) Connect(p api.Protocol) {
	c.mu.Lock()
	c.proto = p
	c.state = api.StateConnected
	c.mu.Unlock()
	p.SetTransport(c)
	p.ConnectionMade()
}

// Deliver feeds data to the protocol as if it arrived from the peer.
func (c *Connection) Deliver(data []byte) {
	c.mu.Lock()
	p, state := c.proto, c.state
	c.mu.Unlock()
	if p != nil && state == api.StateConnected {
		p.DataReceived(data)
	}
}

// Written returns a copy of everything written so far.
func (c *Connection) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// Reset clears the recorded writes.
func (c *Connection) Reset() {
	c.mu.Lock()
	c.written.Reset()
	c.mu.Unlock()
}

// LostReason returns the reason passed to ConnectionLost, if any.
func (c *Connection) LostReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lostReason
}

func (c *Connection) Write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != api.StateConnected || c.writeClosed {
		return
	}
	c.written.Write(data)
}

func (c *Connection) WriteSequence(chunks [][]byte) {
	for _, b := range chunks {
		c.Write(b)
	}
}

func (c *Connection) LoseConnection() {
	c.lose(api.ErrConnectionDone)
}

func (c *Connection) AbortConnection() {
	c.lose(api.ErrConnectionAborted)
}

func (c *Connection) LoseWriteConnection() {
	c.mu.Lock()
	c.writeClosed = true
	c.mu.Unlock()
}

func (c *Connection) lose(reason error) {
	c.mu.Lock()
	if c.state == api.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = api.StateDisconnected
	c.lostReason = reason
	p := c.proto
	c.mu.Unlock()
	if p != nil {
		p.ConnectionLost(reason)
	}
}

func (c *Connection) State() api.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) PauseProducing() {
	c.mu.Lock()
	c.producer = api.Paused
	c.mu.Unlock()
}

func (c *Connection) ResumeProducing() {
	c.mu.Lock()
	c.producer = api.Producing
	c.mu.Unlock()
}

func (c *Connection) StopProducing() {
	c.mu.Lock()
	c.producer = api.Stopped
	c.mu.Unlock()
	c.LoseConnection()
}

// ProducerState returns the last flow control request.
func (c *Connection) ProducerState() api.ProducerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producer
}

func (c *Connection) LocalAddress() (api.Address, error) {
	return c.local, nil
}

func (c *Connection) RemoteAddress() (api.Address, error) {
	return c.remote, nil
}

func (c *Connection) NoDelay() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noDelay, nil
}

func (c *Connection) SetNoDelay(enabled bool) error {
	c.mu.Lock()
	c.noDelay = enabled
	c.mu.Unlock()
	return nil
}

func (c *Connection) KeepAlive() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepAlive, nil
}

func (c *Connection) SetKeepAlive(enabled bool) error {
	c.mu.Lock()
	c.keepAlive = enabled
	c.mu.Unlock()
	return nil
}
