// File: transport/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream connection state machine: FIFO write queue, single outstanding
// read and write, graceful and abortive close.

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/reactor"
)

// Kind adapts the shared machinery to one socket family.
type Kind struct {
	// Name is used in log fields, e.g. "tcp".
	Name string
	// Wrap builds the family-specific Connection handed to protocols.
	// Nil hands out the *Conn itself.
	Wrap func(*Conn) api.Connection
	// PrepareAbort runs on the socket right before an abortive close.
	PrepareAbort func(net.Conn)
}

// chunk is a queued write; data shrinks as partial writes complete.
type chunk struct {
	data []byte
}

// Conn is a connected stream socket bound to a Protocol. All methods must
// be called on the reactor goroutine.
type Conn struct {
	r     *reactor.Reactor
	kind  Kind
	self  api.Connection
	id    uuid.UUID
	sock  net.Conn
	proto api.Protocol
	state api.TransportState

	writes        *queue.Queue // of *chunk
	writing       bool
	reading       bool
	producer      api.ProducerState
	writeShutdown bool // LoseWriteConnection requested
	writeClosed   bool
	readClosed    bool
	lostNotified  bool

	trigger    reactor.TriggerID
	hasTrigger bool
	closers    []*deferred.Deferred

	onLost func(reason error)
}

// NewConn creates a connection in the Connecting state with no socket yet.
func NewConn(r *reactor.Reactor, kind Kind) *Conn {
	c := &Conn{
		r:      r,
		kind:   kind,
		id:     uuid.New(),
		state:  api.StateConnecting,
		writes: queue.New(),
	}
	c.self = c
	if kind.Wrap != nil {
		c.self = kind.Wrap(c)
	}
	return c
}

// ID is a unique identifier used in logs.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Handle returns the family-specific Connection wrapping c.
func (c *Conn) Handle() api.Connection {
	return c.self
}

// Socket exposes the underlying net.Conn, nil before establishment.
func (c *Conn) Socket() net.Conn {
	return c.sock
}

// Protocol returns the bound protocol, nil before establishment.
func (c *Conn) Protocol() api.Protocol {
	return c.proto
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s connection %s (%s)", c.kind.Name, c.id, c.state)
}

func (c *Conn) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"conn":     c.id.String(),
		"kind":     c.kind.Name,
	})
}

// establish binds sock and proto, fires ConnectionMade and starts reading.
func (c *Conn) establish(sock net.Conn, proto api.Protocol) {
	c.sock = sock
	c.proto = proto
	c.state = api.StateConnected
	c.r.Metrics().ConnectionsOpened.Inc(1)
	c.logger("Conn.establish").WithField("remote", sock.RemoteAddr()).Debug("Connection made")
	c.trigger = c.r.AddShutdownTrigger(c.closeOnShutdown)
	c.hasTrigger = true

	if !c.guard("ConnectionMade", func() {
		proto.SetTransport(c.self)
		proto.ConnectionMade()
	}) {
		return
	}
	if c.state == api.StateConnected {
		c.startReading()
	}
}

// guard runs a protocol callback. A panic other than a contract violation
// drops the connection with the panic as reason; it reports whether fn
// returned normally.
func (c *Conn) guard(callback string, fn func()) (ok bool) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if api.IsContractViolation(rec) || deferred.IsContractViolation(rec) {
			panic(rec)
		}
		ok = false
		err := api.Wrap(api.ErrCodeConnectionLost, fmt.Errorf("panic: %v", rec), "protocol "+callback+" failed")
		c.logger("Conn.guard").WithError(err).Error("Protocol callback panicked")
		c.AbortConnectionWith(err)
	}()
	fn()
	return true
}

// Write queues a copy of data. Writes are dropped once the connection is
// closing or the write side has been shut down.
func (c *Conn) Write(data []byte) {
	if len(data) == 0 || !c.writable() {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes.Add(&chunk{data: buf})
	c.startWriting()
}

// WriteSequence queues each chunk in order.
func (c *Conn) WriteSequence(chunks [][]byte) {
	for _, b := range chunks {
		c.Write(b)
	}
}

func (c *Conn) writable() bool {
	return c.state == api.StateConnected && !c.writeShutdown
}

// startWriting issues a write for the queue head if none is outstanding.
func (c *Conn) startWriting() {
	if c.writing || c.sock == nil || c.writes.Length() == 0 {
		return
	}
	c.writing = true
	head := c.writes.Peek().(*chunk)
	sock, data := c.sock, head.data
	go func() {
		n, err := sock.Write(data)
		c.r.CallFromThread(func() { c.cbWrite(n, err) })
	}()
}

func (c *Conn) cbWrite(n int, err error) {
	c.writing = false
	if c.state == api.StateDisconnected {
		return
	}
	if n > 0 {
		c.r.Metrics().BytesWritten.Inc(int64(n))
	}
	if err != nil {
		c.closeConn(Classify(err))
		return
	}

	head := c.writes.Peek().(*chunk)
	if n < len(head.data) {
		head.data = head.data[n:]
	} else {
		c.writes.Remove()
	}
	if c.writes.Length() > 0 {
		c.startWriting()
		return
	}

	switch {
	case c.state == api.StateDisconnecting:
		c.closeConn(api.ErrConnectionDone)
	case c.writeShutdown && !c.writeClosed:
		c.shutdownWrite()
	}
}

// startReading issues a read unless one is outstanding or reading is
// paused, stopped or closed.
func (c *Conn) startReading() {
	if c.reading || c.sock == nil || c.state != api.StateConnected ||
		c.readClosed || c.producer != api.Producing {
		return
	}
	c.reading = true
	buffers := c.r.BufferPool()
	buf := buffers.GetBuffer()
	sock := c.sock
	go func() {
		n, err := sock.Read(buf)
		c.r.CallFromThread(func() { c.cbRead(buf, n, err) })
	}()
}

func (c *Conn) cbRead(buf []byte, n int, err error) {
	c.reading = false
	defer c.r.BufferPool().PutBuffer(buf)
	if c.state == api.StateDisconnected {
		return
	}

	if n > 0 {
		c.r.Metrics().BytesRead.Inc(int64(n))
		if !c.guard("DataReceived", func() { c.proto.DataReceived(buf[:n]) }) {
			return
		}
		if c.state == api.StateDisconnected {
			return
		}
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			c.readEOF()
			return
		}
		c.closeConn(Classify(err))
		return
	}
	c.startReading()
}

// readEOF handles an orderly shutdown by the peer.
func (c *Conn) readEOF() {
	if c.state == api.StateDisconnecting && (c.writing || c.writes.Length() > 0) {
		// cbWrite closes once the queue is flushed
		c.readClosed = true
		return
	}
	hc, halfCloseable := c.proto.(api.HalfCloseableProtocol)
	if !halfCloseable || c.state != api.StateConnected {
		c.closeConn(api.ErrConnectionDone)
		return
	}
	c.readClosed = true
	if !c.guard("ReadConnectionLost", hc.ReadConnectionLost) {
		return
	}
	if c.writeClosed {
		c.closeConn(api.ErrConnectionDone)
	}
}

// LoseConnection closes the connection once the write queue is flushed.
func (c *Conn) LoseConnection() {
	if c.state != api.StateConnected {
		return
	}
	c.state = api.StateDisconnecting
	if !c.writing && c.writes.Length() == 0 {
		c.closeConn(api.ErrConnectionDone)
	}
}

// LoseWriteConnection shuts down the write side once the queue is flushed.
// The connection closes when the peer finishes too.
func (c *Conn) LoseWriteConnection() {
	if c.state != api.StateConnected || c.writeShutdown {
		return
	}
	c.writeShutdown = true
	if !c.writing && c.writes.Length() == 0 {
		c.shutdownWrite()
	}
}

func (c *Conn) shutdownWrite() {
	cw, ok := c.sock.(interface{ CloseWrite() error })
	if !ok {
		c.closeConn(api.ErrConnectionDone)
		return
	}
	if err := cw.CloseWrite(); err != nil {
		c.closeConn(Classify(err))
		return
	}
	c.writeClosed = true
	if c.readClosed {
		c.closeConn(api.ErrConnectionDone)
	}
}

// AbortConnection closes immediately, discarding queued writes.
func (c *Conn) AbortConnection() {
	c.AbortConnectionWith(api.ErrConnectionAborted)
}

// AbortConnectionWith aborts and reports reason to ConnectionLost.
func (c *Conn) AbortConnectionWith(reason error) {
	if c.state == api.StateDisconnected {
		return
	}
	if c.sock != nil && c.kind.PrepareAbort != nil {
		c.kind.PrepareAbort(c.sock)
	}
	c.closeConn(reason)
}

// closeConn releases the socket right away and notifies the protocol on the
// next loop turn, so ConnectionLost never runs inside another callback of
// the same protocol.
func (c *Conn) closeConn(reason error) {
	if c.state == api.StateDisconnected {
		return
	}
	c.state = api.StateDisconnected
	for c.writes.Length() > 0 {
		c.writes.Remove()
	}
	if c.sock != nil {
		if err := c.sock.Close(); err != nil {
			c.logger("Conn.closeConn").WithError(err).Debug("Close failed")
		}
		c.r.Metrics().ConnectionsClosed.Inc(1)
	}
	c.r.CallSoon(func() { c.notifyLost(reason) })
}

func (c *Conn) notifyLost(reason error) {
	if c.lostNotified {
		return
	}
	c.lostNotified = true
	if c.hasTrigger {
		c.r.RemoveShutdownTrigger(c.trigger)
		c.hasTrigger = false
	}
	c.logger("Conn.notifyLost").WithField("reason", reason).Debug("Connection lost")
	if c.proto != nil {
		c.guardLost(reason)
	}
	if c.onLost != nil {
		c.onLost(reason)
	}
	closers := c.closers
	c.closers = nil
	for _, d := range closers {
		d.Callback(nil)
	}
}

// closeOnShutdown closes the connection gracefully when the reactor stops.
// The returned Deferred fires after ConnectionLost; cancelling it, as the
// reactor does once the shutdown timeout passes, aborts the connection.
func (c *Conn) closeOnShutdown() *deferred.Deferred {
	c.hasTrigger = false
	if c.lostNotified {
		return nil
	}
	d := deferred.NewWithCanceller(func(*deferred.Deferred) {
		c.AbortConnection()
	})
	c.closers = append(c.closers, d)
	c.LoseConnection()
	return d
}

func (c *Conn) guardLost(reason error) {
	defer func() {
		if rec := recover(); rec != nil {
			if api.IsContractViolation(rec) || deferred.IsContractViolation(rec) {
				panic(rec)
			}
			c.logger("Conn.notifyLost").WithField("panic", rec).Error("ConnectionLost panicked")
		}
	}()
	c.proto.ConnectionLost(reason)
}

// PauseProducing stops issuing reads. A read already in flight still
// delivers its data.
func (c *Conn) PauseProducing() {
	if c.producer == api.Producing {
		c.producer = api.Paused
	}
}

// ResumeProducing restarts the read loop.
func (c *Conn) ResumeProducing() {
	if c.producer != api.Paused {
		return
	}
	c.producer = api.Producing
	c.startReading()
}

// StopProducing stops reading for good and closes gracefully.
func (c *Conn) StopProducing() {
	c.producer = api.Stopped
	c.LoseConnection()
}

// State returns the transport state.
func (c *Conn) State() api.TransportState {
	return c.state
}

// ProducerState returns the flow control state of the read side.
func (c *Conn) ProducerState() api.ProducerState {
	return c.producer
}

// LocalAddress queries the socket's local endpoint.
func (c *Conn) LocalAddress() (api.Address, error) {
	return LocalAddress(c.sock)
}

// RemoteAddress queries the socket's peer endpoint.
func (c *Conn) RemoteAddress() (api.Address, error) {
	return RemoteAddress(c.sock)
}
