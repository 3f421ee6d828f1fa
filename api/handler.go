// File: api/handler.go
// Package api defines the Protocol and Factory capabilities.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Protocol receives lifecycle and data notifications from its Connection.
//
// Notification order is fixed: SetTransport, ConnectionMade, any number of
// DataReceived, then exactly one ConnectionLost.
type Protocol interface {
	// SetTransport binds the connection before ConnectionMade fires.
	SetTransport(t Connection)

	ConnectionMade()

	// DataReceived delivers bytes in arrival order. The slice is only valid
	// for the duration of the call; copy it to retain it.
	DataReceived(data []byte)

	// ConnectionLost fires once. reason is ErrConnectionDone on a clean
	// close, ErrConnectionAborted after AbortConnection, or the transport
	// failure otherwise.
	ConnectionLost(reason error)
}

// HalfCloseableProtocol is notified when the peer shuts down its write side.
// The connection stays open for writing until LoseConnection is called.
type HalfCloseableProtocol interface {
	Protocol
	ReadConnectionLost()
}

// Factory builds a fresh Protocol per connection. Returning nil refuses the
// connection.
type Factory interface {
	BuildProtocol(addr Address) Protocol
}

// ClientFactory is notified about the outcome of each connect attempt.
// Retry policy belongs to the implementation.
type ClientFactory interface {
	Factory
	ClientConnectionFailed(c Connector, reason error)
	ClientConnectionLost(c Connector, reason error)
}

// FactoryLifecycle is implemented by factories that want start/stop hooks
// around the first and last listener or connector using them.
type FactoryLifecycle interface {
	DoStart()
	DoStop()
}

// ConnectingObserver is notified when a connector begins an attempt.
type ConnectingObserver interface {
	StartedConnecting(c Connector)
}
