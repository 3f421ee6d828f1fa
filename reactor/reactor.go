// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Event loop: a FIFO of posted tasks plus a timer heap, drained on the
// goroutine that calls Run.

package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/emirpasic/gods/trees/binaryheap"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/affinity"
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/pool"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("reactor: already running")

// Reactor is a single-threaded event loop.
type Reactor struct {
	cfg      Config
	resolver Resolver
	registry metrics.Registry
	metrics  *control.Metrics
	probes   *control.DebugProbes
	buffers  *pool.BytePool

	mu    sync.Mutex
	tasks *queue.Queue // of func(), guarded by mu
	wake  chan struct{}

	// loop-owned
	timers   *binaryheap.Heap
	timerSeq uint64
	triggers []shutdownTrigger
	trigSeq  uint64

	running atomic.Bool
	stopReq atomic.Bool
	nTimers atomic.Int64
	runMu   sync.Mutex
}

// New creates a reactor. It does nothing until Run is called.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		cfg:      *DefaultConfig(),
		resolver: netResolver{},
		tasks:    queue.New(),
		wake:     make(chan struct{}, 1),
		timers:   binaryheap.NewWith(compareTimers),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = control.NewMetrics(r.registry)
	r.buffers = pool.NewBytePool(r.cfg.ReadBufferSize)
	r.probes = control.NewDebugProbes()
	control.RegisterPlatformProbes(r.probes)
	r.probes.RegisterProbe("reactor.running", func() any { return r.running.Load() })
	r.probes.RegisterProbe("reactor.pendingTasks", func() any { return r.pendingTasks() })
	r.probes.RegisterProbe("reactor.timers", func() any { return r.nTimers.Load() })
	return r
}

// Config returns a copy of the effective configuration.
func (r *Reactor) Config() Config {
	return r.cfg
}

// Metrics exposes the reactor counters.
func (r *Reactor) Metrics() *control.Metrics {
	return r.metrics
}

// Probes exposes the debug probe registry.
func (r *Reactor) Probes() *control.DebugProbes {
	return r.probes
}

// BufferPool returns the pool that backs connection reads.
func (r *Reactor) BufferPool() *pool.BytePool {
	return r.buffers
}

// Running reports whether Run is executing.
func (r *Reactor) Running() bool {
	return r.running.Load()
}

// CallFromThread queues fn to run on the loop. Safe from any goroutine.
// Tasks run in the order they were posted.
func (r *Reactor) CallFromThread(fn func()) {
	if fn == nil {
		panic(api.NewContractViolation("reactor: nil task"))
	}
	r.mu.Lock()
	r.tasks.Add(fn)
	r.mu.Unlock()
	r.signal()
}

// CallSoon queues fn behind the tasks already posted. It is the on-loop
// spelling of CallFromThread.
func (r *Reactor) CallSoon(fn func()) {
	r.CallFromThread(fn)
}

// Stop asks the loop to run its shutdown triggers and return. Safe from any
// goroutine; repeated calls are ignored.
func (r *Reactor) Stop() {
	r.stopReq.Store(true)
	r.signal()
}

func (r *Reactor) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) pendingTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.Length()
}

// Run drives the loop on the calling goroutine until Stop is called or ctx
// is done, then fires the shutdown triggers and waits for them for at most
// Config.ShutdownTimeout. It returns ctx.Err() when ctx ended the loop.
func (r *Reactor) Run(ctx context.Context) error {
	r.runMu.Lock()
	if r.running.Load() {
		r.runMu.Unlock()
		return ErrAlreadyRunning
	}
	r.running.Store(true)
	r.stopReq.Store(false)
	r.runMu.Unlock()
	defer r.running.Store(false)

	log := logrus.WithFields(logrus.Fields{
		"function": "Reactor.Run",
	})
	if r.cfg.CPU >= 0 {
		release, err := affinity.Pin(r.cfg.CPU)
		defer release()
		if err != nil {
			log.WithError(err).WithField("cpu", r.cfg.CPU).Warn("Could not pin reactor thread")
		}
	}
	log.Debug("Reactor started")

	var runErr error
	for !r.stopReq.Load() {
		r.iterate()
		if r.stopReq.Load() {
			break
		}
		if err := r.wait(ctx.Done()); err != nil {
			runErr = ctx.Err()
			break
		}
	}

	r.shutdown()
	log.Debug("Reactor stopped")
	return runErr
}

// iterate runs one batch of posted tasks and every due timer.
func (r *Reactor) iterate() {
	r.mu.Lock()
	batch := r.tasks
	r.tasks = queue.New()
	r.mu.Unlock()

	for batch.Length() > 0 {
		fn := batch.Remove().(func())
		r.runTask(fn)
		r.metrics.TasksRun.Inc(1)
	}
	r.runTimers(time.Now())
}

// wait blocks until a task is posted, the next timer is due, Stop is called
// or done is closed. It returns a non-nil error only for done.
func (r *Reactor) wait(done <-chan struct{}) error {
	if r.pendingTasks() > 0 {
		return nil
	}
	var timeout <-chan time.Time
	if next, ok := r.nextTimer(); ok {
		d := time.Until(next)
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-r.wake:
	case <-timeout:
	case <-done:
		return context.Canceled
	}
	return nil
}

// runTask executes fn, logging recovered panics. Contract violations are
// programming errors and keep unwinding.
func (r *Reactor) runTask(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if api.IsContractViolation(rec) || deferred.IsContractViolation(rec) {
				panic(rec)
			}
			r.metrics.PanicsRecovered.Inc(1)
			logrus.WithFields(logrus.Fields{
				"function": "Reactor.runTask",
				"panic":    rec,
			}).Error("Recovered panic in reactor task")
		}
	}()
	fn()
}

// shutdown fires the triggers and keeps the loop turning until they all
// resolve or the shutdown timeout passes.
func (r *Reactor) shutdown() {
	triggers := r.triggers
	r.triggers = nil
	if len(triggers) == 0 {
		r.iterate()
		return
	}

	ds := make([]*deferred.Deferred, 0, len(triggers))
	for _, t := range triggers {
		t := t
		var d *deferred.Deferred
		r.runTask(func() { d = t.fn() })
		if d == nil {
			d = deferred.Succeed(nil)
		}
		ds = append(ds, d)
	}
	all := deferred.GatherResults(ds)
	all.AddErrback(func(f *deferred.Failure) (any, error) {
		logrus.WithFields(logrus.Fields{
			"function": "Reactor.shutdown",
			"error":    f.Error(),
		}).Warn("Shutdown trigger failed")
		return nil, nil
	})

	deadline := time.Now().Add(r.cfg.ShutdownTimeout)
	expired := make(chan struct{})
	timer := time.AfterFunc(r.cfg.ShutdownTimeout, func() {
		close(expired)
		r.signal()
	})
	defer timer.Stop()

	for !all.Called() {
		r.iterate()
		if all.Called() {
			break
		}
		if time.Now().After(deadline) {
			logrus.WithFields(logrus.Fields{
				"function": "Reactor.shutdown",
				"timeout":  r.cfg.ShutdownTimeout,
			}).Warn("Shutdown triggers did not finish in time")
			all.Cancel()
			// deliver what the cancellation queued
			r.iterate()
			break
		}
		_ = r.wait(expired)
	}
}
