// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Transport-side contracts: the Connection handed to protocols, and the
// passive (Listener) and active (Connector) endpoints that create them.
// All methods must be called on the reactor goroutine.

package api

import "github.com/momentics/hioload-reactor/deferred"

// Producer controls the read side of a Connection for flow control.
type Producer interface {
	// PauseProducing stops issuing reads until ResumeProducing.
	PauseProducing()
	// ResumeProducing restarts the read loop.
	ResumeProducing()
	// StopProducing closes the connection gracefully.
	StopProducing()
}

// Connection is the transport bound to a Protocol.
type Connection interface {
	Producer

	// Write queues data for transmission. Bytes leave in call order.
	// The slice is copied; the caller may reuse it on return.
	Write(data []byte)

	// WriteSequence queues several buffers as consecutive writes.
	WriteSequence(chunks [][]byte)

	// LoseConnection flushes queued writes, then closes the connection.
	LoseConnection()

	// LoseWriteConnection flushes queued writes, then shuts down the
	// write side only. Reading continues until the peer closes.
	LoseWriteConnection()

	// AbortConnection closes immediately, discarding queued writes.
	AbortConnection()

	// State returns the current transport state.
	State() TransportState

	// LocalAddress queries the live local endpoint of the socket.
	LocalAddress() (Address, error)

	// RemoteAddress queries the live peer endpoint of the socket.
	RemoteAddress() (Address, error)
}

// TCPConnection exposes TCP socket options as live pass-through calls.
type TCPConnection interface {
	Connection

	NoDelay() (bool, error)
	SetNoDelay(enabled bool) error
	KeepAlive() (bool, error)
	SetKeepAlive(enabled bool) error
}

// Listener is a passive-open endpoint.
type Listener interface {
	// StartListening binds and begins accepting. Fails with ErrBind.
	StartListening() error

	// StopListening closes the listening socket. The returned Deferred
	// fires with nil once the socket is closed and the accept loop is idle.
	StopListening() *deferred.Deferred

	// Address returns the bound local address.
	Address() (Address, error)

	// Accepting reports whether the accept loop is running.
	Accepting() bool
}

// Connector is an active-open endpoint for one destination.
type Connector interface {
	// StartConnecting begins a new attempt. Ignored unless Disconnected.
	StartConnecting()

	// StopConnecting cancels an attempt in flight. No-op once Connected.
	StopConnecting()

	// State returns the connector state.
	State() ConnectorState

	// Destination returns the target address as configured.
	Destination() Address

	// Connection returns the established connection, if any. Diagnostic
	// only; disconnecting must go through the Connection itself.
	Connection() Connection
}
