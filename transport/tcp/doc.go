// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp specializes the stream transport for TCP: listeners bound to
// a port and interface, connectors that resolve host names, and connections
// exposing TCP_NODELAY and SO_KEEPALIVE as live socket options.
package tcp
