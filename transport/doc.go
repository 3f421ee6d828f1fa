// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport implements the stream transport state machine shared by
// the TCP and Unix-domain socket families: the Conn handed to protocols, the
// accept loop of StreamListener and the resolve/dial sequence of
// StreamConnector.
//
// Every blocking socket call runs on its own goroutine and reports back
// through reactor.CallFromThread, so at most one read and one write are
// outstanding per connection and all state lives on the reactor goroutine.
package transport
