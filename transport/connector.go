// File: transport/connector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Active open: optional name resolution, sequential dial over the resolved
// candidates, connect timeout and cancellation.

package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// DialFunc connects to one concrete address ("ip:port" or a socket path).
// It must give up when ctx is done.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// StreamConnector drives connection attempts to one destination on behalf
// of a ClientFactory. All methods must be called on the reactor goroutine.
type StreamConnector struct {
	r       *reactor.Reactor
	kind    Kind
	factory api.ClientFactory
	dest    api.Address
	timeout time.Duration
	dial    DialFunc

	// Resolve enables host name resolution of the destination before
	// dialing. Candidates are tried one after another in resolver order.
	Resolve bool

	state          api.ConnectorState
	gen            uint64
	cancel         context.CancelFunc
	timer          *reactor.DelayedCall
	conn           *Conn
	factoryStarted bool
}

// NewStreamConnector prepares a connector in the Disconnected state.
// A zero timeout disables the connect timeout.
func NewStreamConnector(r *reactor.Reactor, kind Kind, factory api.ClientFactory, dest api.Address, timeout time.Duration, dial DialFunc) *StreamConnector {
	return &StreamConnector{
		r:       r,
		kind:    kind,
		factory: factory,
		dest:    dest,
		timeout: timeout,
		dial:    dial,
	}
}

func (c *StreamConnector) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"kind":     c.kind.Name,
		"dest":     c.dest.String(),
	})
}

// State returns the connector state.
func (c *StreamConnector) State() api.ConnectorState {
	return c.state
}

// Destination returns the configured target.
func (c *StreamConnector) Destination() api.Address {
	return c.dest
}

// Timeout returns the connect timeout, zero when disabled.
func (c *StreamConnector) Timeout() time.Duration {
	return c.timeout
}

// Connection returns the established connection while Connected.
func (c *StreamConnector) Connection() api.Connection {
	if c.conn == nil || c.state != api.ConnectorConnected {
		return nil
	}
	return c.conn.Handle()
}

// StartConnecting begins a new attempt. It is ignored unless the connector
// is Disconnected.
func (c *StreamConnector) StartConnecting() {
	if c.state != api.ConnectorDisconnected {
		return
	}
	c.state = api.ConnectorConnecting
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.r.Metrics().ConnectAttempts.Inc(1)

	if !c.factoryStarted {
		c.factoryStarted = true
		if fl, ok := c.factory.(api.FactoryLifecycle); ok {
			fl.DoStart()
		}
	}
	if obs, ok := c.factory.(api.ConnectingObserver); ok {
		obs.StartedConnecting(c)
		if c.gen != gen || c.state != api.ConnectorConnecting {
			// the observer stopped or restarted us
			return
		}
	}

	if c.timeout > 0 {
		c.timer = c.r.CallLater(c.timeout, func() {
			if c.gen == gen && c.state == api.ConnectorConnecting {
				c.logger("StreamConnector.timeout").WithField("timeout", c.timeout).Debug("Connect timed out")
				c.failed(api.NewTimeoutError(c.dest.String()))
			}
		})
	}

	if !c.Resolve || c.dest.Family == api.FamilyUnix {
		c.dialNext(ctx, gen, []string{c.dest.String()}, 0, nil)
		return
	}
	c.r.Resolve(ctx, c.dest.Host, func(addrs []string, err error) {
		if c.gen != gen || c.state != api.ConnectorConnecting {
			return
		}
		if err != nil {
			c.failed(err)
			return
		}
		port := strconv.Itoa(int(c.dest.Port))
		candidates := make([]string, len(addrs))
		for i, a := range addrs {
			candidates[i] = net.JoinHostPort(a, port)
		}
		c.dialNext(ctx, gen, candidates, 0, nil)
	})
}

// dialNext tries candidates[i]; on failure the next candidate follows, and
// the last error is reported when none is left.
func (c *StreamConnector) dialNext(ctx context.Context, gen uint64, candidates []string, i int, lastErr error) {
	if i >= len(candidates) {
		c.failed(lastErr)
		return
	}
	c.conn = NewConn(c.r, c.kind)
	target := candidates[i]
	dial := c.dial
	go func() {
		sock, err := dial(ctx, target)
		c.r.CallFromThread(func() { c.cbConnect(ctx, gen, candidates, i, sock, err) })
	}()
}

func (c *StreamConnector) cbConnect(ctx context.Context, gen uint64, candidates []string, i int, sock net.Conn, err error) {
	if c.gen != gen || c.state != api.ConnectorConnecting {
		// completion of a cancelled or timed out attempt
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		c.logger("StreamConnector.cbConnect").WithError(err).WithField("candidate", candidates[i]).Debug("Dial failed")
		c.dialNext(ctx, gen, candidates, i+1, Classify(err))
		return
	}

	c.cancelTimeout()
	c.cancel()
	addr, aerr := api.AddressFromNet(sock.RemoteAddr())
	if aerr != nil {
		addr = c.dest
	}
	proto := c.factory.BuildProtocol(addr)
	if proto == nil {
		_ = sock.Close()
		c.failed(api.NewError(api.ErrCodeConnectionAborted, "factory refused the connection"))
		return
	}

	c.state = api.ConnectorConnected
	conn := c.conn
	conn.onLost = func(reason error) { c.connectionLost(conn, reason) }
	c.logger("StreamConnector.cbConnect").WithField("conn", conn.ID().String()).Debug("Connected")
	conn.establish(sock, proto)
}

// StopConnecting cancels an attempt in flight; the factory sees
// api.ErrCancelled. It does nothing when not Connecting.
func (c *StreamConnector) StopConnecting() {
	if c.state != api.ConnectorConnecting {
		return
	}
	c.failed(api.NewCancelledError("connect to " + c.dest.String()))
}

func (c *StreamConnector) cancelTimeout() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
}

// failed ends the current attempt and notifies the factory once.
func (c *StreamConnector) failed(reason error) {
	if reason == nil {
		reason = api.NewError(api.ErrCodeConnectionRefused, "no address to connect to")
	}
	c.cancelTimeout()
	if c.cancel != nil {
		c.cancel()
	}
	c.state = api.ConnectorDisconnected
	c.conn = nil
	c.r.Metrics().ConnectFailures.Inc(1)
	c.logger("StreamConnector.failed").WithError(reason).Debug("Connection failed")
	c.factory.ClientConnectionFailed(c, reason)
	c.stopFactoryIfIdle()
}

func (c *StreamConnector) connectionLost(conn *Conn, reason error) {
	if c.conn != conn {
		return
	}
	c.state = api.ConnectorDisconnected
	c.conn = nil
	c.factory.ClientConnectionLost(c, reason)
	c.stopFactoryIfIdle()
}

func (c *StreamConnector) stopFactoryIfIdle() {
	if !c.factoryStarted || c.state != api.ConnectorDisconnected {
		return
	}
	c.factoryStarted = false
	if fl, ok := c.factory.(api.FactoryLifecycle); ok {
		fl.DoStop()
	}
}
