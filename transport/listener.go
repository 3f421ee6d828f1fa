// File: transport/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept loop turning incoming sockets into Conns.

package transport

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/reactor"
)

// ListenFunc opens the listening socket.
type ListenFunc func() (net.Listener, error)

// StreamListener accepts connections for a Factory. All methods must be
// called on the reactor goroutine.
type StreamListener struct {
	r       *reactor.Reactor
	kind    Kind
	factory api.Factory
	listen  ListenFunc
	desc    string

	ln         net.Listener
	accepting  bool
	stopping   bool
	inflight   bool
	retry      *reactor.DelayedCall
	trigger    reactor.TriggerID
	hasTrigger bool
	waiters    []*deferred.Deferred
}

// NewStreamListener prepares a listener; nothing is bound until
// StartListening. desc names the endpoint in bind errors.
func NewStreamListener(r *reactor.Reactor, kind Kind, factory api.Factory, desc string, listen ListenFunc) *StreamListener {
	return &StreamListener{
		r:       r,
		kind:    kind,
		factory: factory,
		listen:  listen,
		desc:    desc,
	}
}

func (l *StreamListener) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"kind":     l.kind.Name,
		"endpoint": l.desc,
	})
}

// StartListening binds the socket and starts the accept loop. A bind
// failure is returned as an api.ErrBind error.
func (l *StreamListener) StartListening() error {
	if l.ln != nil {
		return nil
	}
	ln, err := l.listen()
	if err != nil {
		bindErr := api.NewBindError(l.desc, err)
		l.logger("StreamListener.StartListening").WithError(err).Warn("Bind failed")
		return bindErr
	}
	l.ln = ln
	l.accepting = true
	if fl, ok := l.factory.(api.FactoryLifecycle); ok {
		fl.DoStart()
	}
	l.trigger = l.r.AddShutdownTrigger(l.StopListening)
	l.hasTrigger = true
	l.logger("StreamListener.StartListening").WithField("addr", ln.Addr()).Info("Listening")
	l.doAccept()
	return nil
}

// doAccept prepares the next connection and waits for a peer.
func (l *StreamListener) doAccept() {
	if !l.accepting || l.ln == nil || l.inflight {
		return
	}
	conn := NewConn(l.r, l.kind)
	ln := l.ln
	l.inflight = true
	go func() {
		sock, err := ln.Accept()
		l.r.CallFromThread(func() { l.cbAccept(conn, sock, err) })
	}()
}

func (l *StreamListener) cbAccept(conn *Conn, sock net.Conn, err error) {
	l.inflight = false
	if err != nil {
		l.acceptFailed(err)
		return
	}
	if !l.accepting {
		_ = sock.Close()
		l.finishStop()
		return
	}

	addr, aerr := api.AddressFromNet(sock.RemoteAddr())
	if aerr != nil {
		l.logger("StreamListener.cbAccept").WithError(aerr).Debug("Peer address unavailable")
	}
	proto := l.factory.BuildProtocol(addr)
	if proto == nil {
		l.logger("StreamListener.cbAccept").WithField("peer", addr.String()).Debug("Factory refused connection")
		_ = sock.Close()
	} else {
		conn.establish(sock, proto)
	}
	l.doAccept()
}

func (l *StreamListener) acceptFailed(err error) {
	if l.stopping || !l.accepting || errors.Is(err, net.ErrClosed) {
		l.finishStop()
		return
	}
	l.r.Metrics().AcceptErrors.Inc(1)
	log := l.logger("StreamListener.acceptFailed").WithError(err)
	switch classifyAccept(err) {
	case acceptLater:
		log.WithField("retry_in", l.r.Config().AcceptRetryDelay).Warn("Accept failed, backing off")
		l.retry = l.r.CallLater(l.r.Config().AcceptRetryDelay, l.doAccept)
	case acceptNow:
		log.Debug("Accept interrupted, retrying")
		l.doAccept()
	default:
		log.Error("Accept failed, no longer accepting")
		l.accepting = false
		_ = l.ln.Close()
		l.finishStop()
	}
}

// StopListening closes the listening socket. The Deferred fires with nil
// once the accept loop has wound down. Connections already accepted are not
// affected.
func (l *StreamListener) StopListening() *deferred.Deferred {
	if l.ln == nil {
		return deferred.Succeed(nil)
	}
	d := deferred.New()
	l.waiters = append(l.waiters, d)
	if l.stopping {
		return d
	}
	l.stopping = true
	l.accepting = false
	if l.hasTrigger {
		l.r.RemoveShutdownTrigger(l.trigger)
		l.hasTrigger = false
	}
	l.retry.Cancel()
	if err := l.ln.Close(); err != nil {
		l.logger("StreamListener.StopListening").WithError(err).Debug("Close failed")
	}
	if !l.inflight {
		// backing off: no accept goroutine will report the close
		l.finishStop()
	}
	return d
}

// finishStop runs once the socket is closed and no accept is in flight.
func (l *StreamListener) finishStop() {
	if l.ln == nil {
		return
	}
	l.ln = nil
	l.accepting = false
	l.stopping = false
	if l.hasTrigger {
		l.r.RemoveShutdownTrigger(l.trigger)
		l.hasTrigger = false
	}
	if fl, ok := l.factory.(api.FactoryLifecycle); ok {
		fl.DoStop()
	}
	l.logger("StreamListener.finishStop").Info("Stopped listening")

	waiters := l.waiters
	l.waiters = nil
	for _, d := range waiters {
		d.Callback(nil)
	}
}

// Address returns the bound address.
func (l *StreamListener) Address() (api.Address, error) {
	if l.ln == nil {
		return api.Address{}, api.ErrNotConnected
	}
	return api.AddressFromNet(l.ln.Addr())
}

// Accepting reports whether the accept loop is active.
func (l *StreamListener) Accepting() bool {
	return l.accepting
}

// Factory returns the factory building protocols for accepted sockets.
func (l *StreamListener) Factory() api.Factory {
	return l.factory
}
