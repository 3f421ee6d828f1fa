// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for the connection read loop.
// Pools are safe for concurrent use; read goroutines take buffers and the
// reactor goroutine returns them after dispatch.
package pool
