// File: protocol/reconnect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client factory that reconnects after failures and lost connections,
// backing off exponentially.

package protocol

import (
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// Backoff defaults.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = time.Hour
	DefaultFactor       = 2.7182818284590451 // e
	DefaultJitter       = 0.11962656472
)

// ReconnectingClientFactory restarts its connector whenever an attempt
// fails or an established connection is lost, until StopTrying is called
// or MaxRetries consecutive retries have been made. A successful
// connection resets the backoff.
type ReconnectingClientFactory struct {
	ClientFactoryBase

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	// Jitter is the standard deviation of each delay, relative to it.
	Jitter float64
	// MaxRetries bounds consecutive retries; zero retries forever.
	MaxRetries int

	r         *reactor.Reactor
	delay     time.Duration
	retries   int
	trying    bool
	connector api.Connector
	call      *reactor.DelayedCall
	normal    func() float64
}

// NewReconnectingClientFactory creates a factory building protocols with
// build and retrying with the default backoff.
func NewReconnectingClientFactory(r *reactor.Reactor, build func(addr api.Address) api.Protocol) *ReconnectingClientFactory {
	f := &ReconnectingClientFactory{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Factor:       DefaultFactor,
		Jitter:       DefaultJitter,
		r:            r,
		delay:        DefaultInitialDelay,
		trying:       true,
		normal:       rand.NormFloat64,
	}
	f.Build = build
	return f
}

func (f *ReconnectingClientFactory) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"retries":  f.retries,
	})
}

// BuildProtocol resets the backoff: the attempt succeeded.
func (f *ReconnectingClientFactory) BuildProtocol(addr api.Address) api.Protocol {
	p := f.ClientFactoryBase.BuildProtocol(addr)
	if p != nil {
		f.delay = f.InitialDelay
		f.retries = 0
	}
	return p
}

func (f *ReconnectingClientFactory) ClientConnectionFailed(c api.Connector, reason error) {
	f.ClientFactoryBase.ClientConnectionFailed(c, reason)
	if f.trying {
		f.connector = c
		f.retry()
	}
}

func (f *ReconnectingClientFactory) ClientConnectionLost(c api.Connector, reason error) {
	f.ClientFactoryBase.ClientConnectionLost(c, reason)
	if f.trying {
		f.connector = c
		f.retry()
	}
}

// retry schedules the next attempt on the remembered connector.
func (f *ReconnectingClientFactory) retry() {
	if !f.trying || f.connector == nil {
		return
	}
	f.retries++
	if f.MaxRetries > 0 && f.retries > f.MaxRetries {
		f.logger("ReconnectingClientFactory.retry").Warn("Giving up after too many retries")
		return
	}

	next := time.Duration(float64(f.delay) * f.Factor)
	if next > f.MaxDelay {
		next = f.MaxDelay
	}
	if f.Jitter > 0 {
		next = time.Duration(float64(next) + f.normal()*float64(next)*f.Jitter)
	}
	if next < 0 {
		next = 0
	}
	f.delay = next

	f.logger("ReconnectingClientFactory.retry").WithField("delay", next).Info("Will retry")
	connector := f.connector
	f.call = f.r.CallLater(next, func() {
		f.call = nil
		connector.StartConnecting()
	})
}

// StopTrying cancels a scheduled retry and stops the connector if it is
// connecting. An established connection is left alone.
func (f *ReconnectingClientFactory) StopTrying() {
	f.call.Cancel()
	f.call = nil
	f.trying = false
	if f.connector != nil {
		f.connector.StopConnecting()
	}
}

// ResetDelay restores the initial backoff and resumes retrying after
// StopTrying.
func (f *ReconnectingClientFactory) ResetDelay() {
	f.delay = f.InitialDelay
	f.retries = 0
	f.trying = true
}

// Retries returns the number of consecutive retries so far.
func (f *ReconnectingClientFactory) Retries() int {
	return f.retries
}

// Delay returns the delay used for the last scheduled retry.
func (f *ReconnectingClientFactory) Delay() time.Duration {
	return f.delay
}

// Trying reports whether failures are retried.
func (f *ReconnectingClientFactory) Trying() bool {
	return f.trying
}
