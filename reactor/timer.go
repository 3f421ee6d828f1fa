// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
//
// One-shot timers on a min-heap. Cancelled and rescheduled entries stay in
// the heap and are skipped when they surface.

package reactor

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/utils"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
)

// DelayedCall is a pending one-shot timer returned by CallLater.
// Its methods must be called on the loop goroutine.
type DelayedCall struct {
	r         *Reactor
	fn        func()
	when      time.Time
	seq       uint64
	called    bool
	cancelled bool
}

type timerEntry struct {
	call *DelayedCall
	when time.Time
	seq  uint64
}

func compareTimers(a, b interface{}) int {
	ea, eb := a.(timerEntry), b.(timerEntry)
	if c := utils.TimeComparator(ea.when, eb.when); c != 0 {
		return c
	}
	return utils.UInt64Comparator(ea.seq, eb.seq)
}

// CallLater schedules fn to run on the loop after d. Calls due at the same
// instant run in scheduling order.
func (r *Reactor) CallLater(d time.Duration, fn func()) *DelayedCall {
	if fn == nil {
		panic(api.NewContractViolation("reactor: nil timer callback"))
	}
	if d < 0 {
		d = 0
	}
	c := &DelayedCall{r: r, fn: fn}
	r.schedule(c, time.Now().Add(d))
	return c
}

func (r *Reactor) schedule(c *DelayedCall, when time.Time) {
	r.timerSeq++
	c.when = when
	c.seq = r.timerSeq
	r.timers.Push(timerEntry{call: c, when: when, seq: c.seq})
	r.nTimers.Store(int64(r.timers.Size()))
}

func (e timerEntry) stale() bool {
	return e.call.cancelled || e.call.called || e.call.seq != e.seq
}

// nextTimer returns the due time of the earliest live timer.
func (r *Reactor) nextTimer() (time.Time, bool) {
	for {
		top, ok := r.timers.Peek()
		if !ok {
			return time.Time{}, false
		}
		e := top.(timerEntry)
		if !e.stale() {
			return e.when, true
		}
		r.timers.Pop()
		r.nTimers.Store(int64(r.timers.Size()))
	}
}

// runTimers fires every live timer due at or before now.
func (r *Reactor) runTimers(now time.Time) {
	for {
		when, ok := r.nextTimer()
		if !ok || when.After(now) {
			return
		}
		top, _ := r.timers.Pop()
		r.nTimers.Store(int64(r.timers.Size()))
		c := top.(timerEntry).call
		c.called = true
		r.runTask(c.fn)
		r.metrics.TimersFired.Inc(1)
	}
}

// Cancel stops the call from running. Cancelling a call that already ran or
// was already cancelled does nothing.
func (c *DelayedCall) Cancel() {
	if c == nil || c.called || c.cancelled {
		return
	}
	c.cancelled = true
}

// Active reports whether the call is still pending.
func (c *DelayedCall) Active() bool {
	return c != nil && !c.called && !c.cancelled
}

// Reset reschedules a pending call to run d from now. Resetting a call that
// ran or was cancelled is a programming error.
func (c *DelayedCall) Reset(d time.Duration) {
	if !c.Active() {
		panic(api.NewContractViolation(fmt.Sprintf("reactor: Reset of inactive DelayedCall (called=%v cancelled=%v)", c.called, c.cancelled)))
	}
	if d < 0 {
		d = 0
	}
	c.r.schedule(c, time.Now().Add(d))
}

// Time returns when the call is due.
func (c *DelayedCall) Time() time.Time {
	return c.when
}

// DeferLater returns a Deferred that fires with fn's result after d.
// Cancelling the Deferred before then cancels the timer.
func (r *Reactor) DeferLater(d time.Duration, fn func() (any, error)) *deferred.Deferred {
	var call *DelayedCall
	out := deferred.NewWithCanceller(func(*deferred.Deferred) {
		call.Cancel()
	})
	call = r.CallLater(d, func() {
		if fn == nil {
			out.Callback(nil)
			return
		}
		deferred.Execute(fn).ChainDeferred(out)
	})
	return out
}
