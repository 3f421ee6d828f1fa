// Package protocol provides building blocks for writing protocols and
// factories on top of the transport: no-op bases to embed, factories with
// start/stop accounting, a client factory that reconnects with
// exponential backoff, and length-prefixed message framing.
//
// Like everything driven by the reactor, these types are not safe for
// concurrent use; they are called on the reactor goroutine.
package protocol
