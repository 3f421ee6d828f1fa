// File: deferred/unhandled.go
// Author: momentics <momentics@gmail.com>
//
// Reporting of failures that nobody consumed.

package deferred

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// UnhandledErrorHandler receives failures left at the end of a chain.
type UnhandledErrorHandler func(f *Failure)

var (
	handlerMu sync.RWMutex
	handler   UnhandledErrorHandler = logUnhandled
)

// SetUnhandledErrorHandler installs fn and returns the previous handler.
// A nil fn restores the default logrus reporter.
func SetUnhandledErrorHandler(fn UnhandledErrorHandler) UnhandledErrorHandler {
	if fn == nil {
		fn = logUnhandled
	}
	handlerMu.Lock()
	defer handlerMu.Unlock()
	prev := handler
	handler = fn
	return prev
}

func reportUnhandled(f *Failure) {
	handlerMu.RLock()
	fn := handler
	handlerMu.RUnlock()
	fn(f)
}

func logUnhandled(f *Failure) {
	logrus.WithFields(logrus.Fields{
		"function": "deferred.reportUnhandled",
		"error":    f.Error(),
	}).Errorf("Unhandled error in Deferred:\n%+v", f)
}

// unhandledTracker is referenced only by its Deferred, so its finalizer runs
// once the Deferred itself is garbage.
type unhandledTracker struct {
	failure *Failure
}

func finalizeTracker(t *unhandledTracker) {
	if t.failure != nil {
		f := t.failure
		t.failure = nil
		reportUnhandled(f)
	}
}

func (d *Deferred) trackUnhandled(f *Failure) {
	if d.tracker == nil {
		d.tracker = &unhandledTracker{}
		runtime.SetFinalizer(d.tracker, finalizeTracker)
	}
	d.tracker.failure = f
}

func (d *Deferred) clearUnhandled() {
	if d.tracker != nil {
		d.tracker.failure = nil
	}
}

// ReportUnhandled reports a pending unconsumed failure right away instead of
// waiting for garbage collection, and consumes it. It returns true if a
// failure was reported.
func (d *Deferred) ReportUnhandled() bool {
	if d.tracker == nil || d.tracker.failure == nil {
		return false
	}
	f := d.tracker.failure
	d.tracker.failure = nil
	d.result = nil
	reportUnhandled(f)
	return true
}
