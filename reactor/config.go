// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Config holds reactor-wide tunables.
type Config struct {
	ReadBufferSize        int           // bytes per read call
	AcceptRetryDelay      time.Duration // pause after fd exhaustion on accept
	DefaultConnectTimeout time.Duration // used when a connect passes 0
	ShutdownTimeout       time.Duration // max wait for shutdown triggers
	CPU                   int           // pin the loop to this CPU (-1 = off)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:        64 * 1024,
		AcceptRetryDelay:      10 * time.Millisecond,
		DefaultConnectTimeout: 30 * time.Second,
		ShutdownTimeout:       30 * time.Second,
		CPU:                   -1,
	}
}

// Option customizes reactor initialization.
type Option func(*Reactor)

// WithConfig replaces the whole configuration. Zero fields keep defaults.
func WithConfig(cfg *Config) Option {
	return func(r *Reactor) {
		if cfg == nil {
			return
		}
		if cfg.ReadBufferSize > 0 {
			r.cfg.ReadBufferSize = cfg.ReadBufferSize
		}
		if cfg.AcceptRetryDelay > 0 {
			r.cfg.AcceptRetryDelay = cfg.AcceptRetryDelay
		}
		if cfg.DefaultConnectTimeout > 0 {
			r.cfg.DefaultConnectTimeout = cfg.DefaultConnectTimeout
		}
		if cfg.ShutdownTimeout > 0 {
			r.cfg.ShutdownTimeout = cfg.ShutdownTimeout
		}
		r.cfg.CPU = cfg.CPU
	}
}

// WithReadBufferSize sets the size of each read.
func WithReadBufferSize(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.cfg.ReadBufferSize = n
		}
	}
}

// WithAcceptRetryDelay sets the backoff applied after resource exhaustion
// in the accept loop.
func WithAcceptRetryDelay(d time.Duration) Option {
	return func(r *Reactor) {
		r.cfg.AcceptRetryDelay = d
	}
}

// WithConnectTimeout sets the timeout used by connects that pass zero.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Reactor) {
		if d > 0 {
			r.cfg.DefaultConnectTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for shutdown triggers.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Reactor) {
		r.cfg.ShutdownTimeout = d
	}
}

// WithCPU pins the loop goroutine's thread to cpu while Run executes.
func WithCPU(cpu int) Option {
	return func(r *Reactor) {
		r.cfg.CPU = cpu
	}
}

// WithResolver replaces the host name resolver.
func WithResolver(res Resolver) Option {
	return func(r *Reactor) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithMetricsRegistry registers the reactor counters in reg instead of a
// private registry.
func WithMetricsRegistry(reg metrics.Registry) Option {
	return func(r *Reactor) {
		r.registry = reg
	}
}
