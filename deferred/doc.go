// Package deferred provides a single-assignment asynchronous result with
// ordered success/error callback chaining.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Deferred is resolved exactly once, with Callback or Errback. Links added
// with AddCallbacks run in registration order; each receives the previous
// link's output. A link returning another *Deferred pauses the chain until
// that Deferred resolves, and its result is spliced in.
//
//	d := deferred.New()
//	d.AddCallback(func(v any) (any, error) {
//		return strings.ToUpper(v.(string)), nil
//	}).AddErrback(func(f *deferred.Failure) (any, error) {
//		return "fallback", nil
//	})
//	d.Callback("pong")
//
// Deferreds are not goroutine-safe. They are meant to be resolved and
// chained on a single reactor goroutine; cross-goroutine completions must be
// posted to the reactor first.
//
// A failure that reaches the end of a chain and is never consumed is
// reported through the unhandled-error handler once the Deferred becomes
// garbage.
package deferred
