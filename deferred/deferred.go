// File: deferred/deferred.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-assignment result with an ordered callback chain.

package deferred

import (
	"fmt"

	"github.com/eapache/queue"
)

// Callback handles a success result. Returning a non-nil error switches the
// chain to the error path; returning a *Deferred pauses the chain until it
// resolves.
type Callback func(result any) (any, error)

// Errback handles a failure. Returning a nil error recovers the chain onto
// the success path with the returned value.
type Errback func(f *Failure) (any, error)

type link struct {
	cb Callback
	eb Errback
}

// Deferred is a single-assignment future with chained callbacks.
type Deferred struct {
	called    bool
	running   bool
	paused    int
	result    any // value or *Failure
	chain     *queue.Queue
	canceller func(*Deferred)
	chainedTo *Deferred

	// set by Cancel so the late completion of the cancelled operation is
	// silently dropped instead of tripping the double-resolution check
	suppressAlreadyCalled bool

	tracker *unhandledTracker
}

// New creates a pending Deferred.
func New() *Deferred {
	return &Deferred{chain: queue.New()}
}

// NewWithCanceller creates a pending Deferred whose Cancel invokes fn.
func NewWithCanceller(fn func(*Deferred)) *Deferred {
	d := New()
	d.canceller = fn
	return d
}

// Callback resolves the Deferred with a success value.
// Resolving twice panics with ErrAlreadyCalled.
func (d *Deferred) Callback(v any) {
	if _, ok := v.(*Deferred); ok {
		panic(fmt.Errorf("%w: Callback with a *Deferred", ErrInvalidResult))
	}
	if _, ok := v.(*Failure); ok {
		panic(fmt.Errorf("%w: Callback with a *Failure, use Errback", ErrInvalidResult))
	}
	d.resolve(v)
}

// Errback resolves the Deferred with a failure.
// Resolving twice panics with ErrAlreadyCalled.
func (d *Deferred) Errback(err error) {
	if err == nil {
		panic(fmt.Errorf("%w: Errback with a nil error", ErrInvalidResult))
	}
	d.resolve(NewFailure(err))
}

func (d *Deferred) resolve(result any) {
	if d.called {
		if d.suppressAlreadyCalled {
			d.suppressAlreadyCalled = false
			return
		}
		panic(fmt.Errorf("%w: result %v", ErrAlreadyCalled, d.result))
	}
	d.called = true
	d.result = result
	d.runCallbacks()
}

// AddCallbacks appends a (success, error) link. Either handler may be nil,
// in which case the result passes through unchanged on that path. If the
// Deferred has already fired, the link runs before AddCallbacks returns.
func (d *Deferred) AddCallbacks(cb Callback, eb Errback) *Deferred {
	d.chain.Add(link{cb: cb, eb: eb})
	if d.called {
		d.runCallbacks()
	}
	return d
}

// AddCallback appends a success-only link.
func (d *Deferred) AddCallback(cb Callback) *Deferred {
	return d.AddCallbacks(cb, nil)
}

// AddErrback appends an error-only link.
func (d *Deferred) AddErrback(eb Errback) *Deferred {
	return d.AddCallbacks(nil, eb)
}

// AddBoth appends fn on both paths. Failures are passed as *Failure values.
func (d *Deferred) AddBoth(fn func(result any) (any, error)) *Deferred {
	return d.AddCallbacks(Callback(fn), func(f *Failure) (any, error) {
		return fn(f)
	})
}

// ChainDeferred forwards this Deferred's result into other.
func (d *Deferred) ChainDeferred(other *Deferred) *Deferred {
	if other == d {
		panic(fmt.Errorf("%w: a Deferred cannot be chained to itself", ErrInvalidResult))
	}
	return d.AddCallbacks(func(v any) (any, error) {
		other.Callback(v)
		return nil, nil
	}, func(f *Failure) (any, error) {
		other.Errback(f)
		return nil, nil
	})
}

// Cancel aborts a pending Deferred. The canceller runs first; if it does not
// resolve the Deferred, it fails with ErrCancelled. A Deferred waiting on a
// nested Deferred cancels that one instead. Fired Deferreds are unaffected.
func (d *Deferred) Cancel() {
	if !d.called {
		if d.canceller != nil {
			d.canceller(d)
		}
		if !d.called {
			d.Errback(ErrCancelled)
			d.suppressAlreadyCalled = true
		}
		return
	}
	if d.chainedTo != nil {
		d.chainedTo.Cancel()
	}
}

// Called reports whether the Deferred has been resolved.
func (d *Deferred) Called() bool {
	return d.called
}

// Paused reports whether the chain is waiting on a nested Deferred.
func (d *Deferred) Paused() bool {
	return d.paused > 0
}

// Result returns the current result and whether the Deferred has fired.
// On the error path the result is a *Failure.
func (d *Deferred) Result() (any, bool) {
	return d.result, d.called
}

func (d *Deferred) runCallbacks() {
	if d.running {
		// links appended from inside a running link are picked up by the
		// outer loop
		return
	}
	d.running = true
	defer func() { d.running = false }()

	d.clearUnhandled()
	for d.paused == 0 && d.chain.Length() > 0 {
		l := d.chain.Remove().(link)

		var (
			out any
			err error
		)
		if f, failed := d.result.(*Failure); failed {
			if l.eb == nil {
				continue
			}
			out, err = invokeErrback(l.eb, f)
		} else {
			if l.cb == nil {
				continue
			}
			out, err = invokeCallback(l.cb, d.result)
		}

		if err != nil {
			d.result = NewFailure(err)
			continue
		}
		inner, nested := out.(*Deferred)
		if !nested {
			d.result = out
			continue
		}
		if inner == d {
			panic(fmt.Errorf("%w: callback returned its own Deferred", ErrInvalidResult))
		}
		if inner.called && inner.paused == 0 && !inner.running {
			// already resolved: take its result over
			d.result = inner.result
			inner.result = nil
			inner.clearUnhandled()
			continue
		}
		d.result = nil
		d.paused++
		d.chainedTo = inner
		inner.AddCallbacks(func(v any) (any, error) {
			d.resume(v)
			return nil, nil
		}, func(f *Failure) (any, error) {
			d.resume(f)
			return nil, nil
		})
	}

	if d.paused == 0 {
		if f, failed := d.result.(*Failure); failed {
			d.trackUnhandled(f)
		}
	}
}

func (d *Deferred) resume(result any) {
	d.paused--
	d.chainedTo = nil
	d.result = result
	d.runCallbacks()
}

func invokeCallback(cb Callback, v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if IsContractViolation(r) {
				panic(r)
			}
			out, err = nil, panicFailure(r)
		}
	}()
	return cb(v)
}

func invokeErrback(eb Errback, f *Failure) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if IsContractViolation(r) {
				panic(r)
			}
			out, err = nil, panicFailure(r)
		}
	}()
	return eb(f)
}
