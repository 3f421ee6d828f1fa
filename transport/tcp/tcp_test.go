package tcp

import (
	"bytes"
	"context"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/reactor/reactortest"
)

// listen binds a loopback listener on a free port.
func listen(t *testing.T, r *reactor.Reactor, f api.Factory) (*Listener, uint16) {
	t.Helper()
	var (
		l    *Listener
		addr api.Address
		err  error
	)
	reactortest.Do(t, r, func() {
		l, err = Listen(r, 0, f, "127.0.0.1")
		if err == nil {
			addr, err = l.Address()
		}
	})
	require.NoError(t, err)
	return l, addr.Port
}

func connect(t *testing.T, r *reactor.Reactor, port uint16, f api.ClientFactory) *Connector {
	t.Helper()
	var c *Connector
	reactortest.Do(t, r, func() {
		c = Connect(r, "127.0.0.1", port, f, time.Second, "")
	})
	return c
}

func TestPingPong(t *testing.T) {
	r := reactortest.Start(t)

	server := fake.NewFactory()
	server.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnData = func(p *fake.Protocol, data []byte) {
			if bytes.Equal(p.Received(), []byte("ping")) {
				p.Transport().Write([]byte("pong"))
			}
		}
		return p
	}
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Do(t, r, func() { cp.Transport().Write([]byte("ping")) })

	assert.Equal(t, []byte("pong"), reactortest.Receive(t, cp.Data))
	reactortest.Do(t, r, func() { cp.Transport().LoseConnection() })
	assert.ErrorIs(t, reactortest.Receive(t, cp.Lost), api.ErrConnectionDone)
	assert.ErrorIs(t, reactortest.Receive(t, client.Lost), api.ErrConnectionDone)
}

func TestWritesAreFIFOAndFlushedOnLoseConnection(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	_, port := listen(t, r, server)

	big := bytes.Repeat([]byte("x"), 4<<20)
	client := fake.NewFactory()
	client.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnMade = func(p *fake.Protocol) {
			c := p.Transport()
			c.Write([]byte("AB"))
			c.WriteSequence([][]byte{[]byte("CD"), big})
			c.LoseConnection()
			assert.Equal(t, api.StateDisconnecting, c.State())
			c.Write([]byte("dropped"))
		}
		return p
	}
	connect(t, r, port, client)

	sp := reactortest.Receive(t, server.Built)
	assert.ErrorIs(t, reactortest.Receive(t, sp.Lost), api.ErrConnectionDone)

	got := sp.Received()
	require.Len(t, got, 4+len(big))
	assert.Equal(t, []byte("ABCD"), got[:4])
	assert.Equal(t, big, got[4:])
}

func TestLoseConnectionFlushesAfterPeerHalfClose(t *testing.T) {
	r := reactortest.Start(t)
	big := bytes.Repeat([]byte("z"), 16<<20)
	server := fake.NewFactory()
	server.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnMade = func(p *fake.Protocol) {
			// next turn, with the first read already outstanding
			r.CallSoon(func() {
				p.Transport().Write(big)
				p.Transport().LoseConnection()
			})
		}
		return p
	}
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	client.Build = func(api.Address) api.Protocol {
		p := fake.NewHalfCloseProtocol()
		p.OnData = func(p *fake.Protocol, _ []byte) {
			p.Transport().LoseWriteConnection()
		}
		return p
	}
	connect(t, r, port, client)

	sp := reactortest.Receive(t, server.Built)
	assert.ErrorIs(t, reactortest.Receive(t, sp.Lost), api.ErrConnectionDone)

	cp := reactortest.Receive(t, client.Built)
	assert.ErrorIs(t, reactortest.Receive(t, cp.Lost), api.ErrConnectionDone)
	got := cp.Received()
	assert.Equal(t, len(big), len(got))
	assert.True(t, bytes.Equal(big, got))
}

func TestAbortDiscardsQueuedWrites(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	_, port := listen(t, r, server)

	big := bytes.Repeat([]byte("y"), 32<<20)
	client := fake.NewFactory()
	var state api.TransportState
	client.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnMade = func(p *fake.Protocol) {
			p.Transport().Write(big)
			p.Transport().AbortConnection()
			state = p.Transport().State()
		}
		return p
	}
	c := connect(t, r, port, client)

	cp := reactortest.Receive(t, client.Built)
	assert.ErrorIs(t, reactortest.Receive(t, cp.Lost), api.ErrConnectionAborted)
	assert.ErrorIs(t, reactortest.Receive(t, client.Lost), api.ErrConnectionAborted)
	reactortest.Do(t, r, func() {
		assert.Equal(t, api.StateDisconnected, state)
		assert.Equal(t, api.ConnectorDisconnected, c.State())
	})

	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Lost)
	assert.Less(t, len(sp.Received()), len(big))
}

func TestConnectionMadeAndLostFireOnce(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)

	reactortest.Do(t, r, func() {
		cp.Transport().LoseConnection()
		cp.Transport().LoseConnection()
		cp.Transport().AbortConnection()
	})
	reactortest.Receive(t, cp.Lost)

	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Lost)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, cp.MadeCount())
	assert.Len(t, cp.LostReasons(), 1)
	assert.Equal(t, 1, sp.MadeCount())
	assert.Len(t, sp.LostReasons(), 1)
}

func TestProtocolGetsTCPConnection(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	_, port := listen(t, r, server)
	client := fake.NewFactory()
	c := connect(t, r, port, client)

	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Made)

	reactortest.Do(t, r, func() {
		tc, ok := sp.Transport().(api.TCPConnection)
		require.True(t, ok)

		require.NoError(t, tc.SetNoDelay(false))
		on, err := tc.NoDelay()
		require.NoError(t, err)
		assert.False(t, on)
		require.NoError(t, tc.SetNoDelay(true))
		on, err = tc.NoDelay()
		require.NoError(t, err)
		assert.True(t, on)

		require.NoError(t, tc.SetKeepAlive(true))
		on, err = tc.KeepAlive()
		require.NoError(t, err)
		assert.True(t, on)

		local, err := tc.LocalAddress()
		require.NoError(t, err)
		assert.Equal(t, port, local.Port)
		assert.Equal(t, "127.0.0.1", local.Host)

		remote, err := cp.Transport().RemoteAddress()
		require.NoError(t, err)
		assert.Equal(t, local, remote)

		assert.Equal(t, api.ConnectorConnected, c.State())
		assert.Same(t, cp.Transport(), c.Connection())

		tc.LoseConnection()
	})
	reactortest.Receive(t, sp.Lost)
	reactortest.Do(t, r, func() {
		_, err := sp.Transport().(api.TCPConnection).NoDelay()
		assert.Error(t, err)
		_, err = sp.Transport().LocalAddress()
		assert.Error(t, err)
	})
}

func TestIPv6Loopback(t *testing.T) {
	if !nettest.SupportsIPv6() {
		t.Skip("no IPv6 loopback")
	}
	r := reactortest.Start(t)
	server := fake.NewFactory()
	var port uint16
	reactortest.Do(t, r, func() {
		l, err := Listen(r, 0, server, "::1")
		require.NoError(t, err)
		addr, err := l.Address()
		require.NoError(t, err)
		assert.Equal(t, api.FamilyTCP6, addr.Family)
		port = addr.Port
	})

	client := fake.NewFactory()
	reactortest.Do(t, r, func() { Connect(r, "::1", port, client, time.Second, "") })
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Do(t, r, func() {
		remote, err := cp.Transport().RemoteAddress()
		require.NoError(t, err)
		assert.Equal(t, api.TCPAddress("::1", port), remote)
	})
}

func TestBindErrorOnPortInUse(t *testing.T) {
	r := reactortest.Start(t)
	_, port := listen(t, r, fake.NewFactory())

	reactortest.Do(t, r, func() {
		_, err := Listen(r, port, fake.NewFactory(), "127.0.0.1")
		assert.ErrorIs(t, err, api.ErrBind)
	})
}

func TestStopListening(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	l, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Made)

	stopped := make(chan struct{})
	reactortest.Do(t, r, func() {
		assert.True(t, l.Accepting())
		l.StopListening().AddCallback(func(any) (any, error) {
			close(stopped)
			return nil, nil
		})
		assert.False(t, l.Accepting())
	})
	reactortest.Receive(t, stopped)

	started, stoppedCount, _ := server.Counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stoppedCount)

	// the accepted connection keeps working
	reactortest.Do(t, r, func() { cp.Transport().Write([]byte("still here")) })
	assert.Equal(t, []byte("still here"), reactortest.Receive(t, sp.Data))

	// new connections are refused
	refused := fake.NewFactory()
	connect(t, r, port, refused)
	assert.ErrorIs(t, reactortest.Receive(t, refused.Failed), api.ErrConnectionRefused)

	reactortest.Do(t, r, func() {
		res, called := l.StopListening().Result()
		assert.True(t, called)
		assert.Nil(t, res)
	})
}

func TestConnectTimeout(t *testing.T) {
	res := fake.NewResolver()
	res.Block()
	r := reactortest.Start(t, reactor.WithResolver(res))

	client := fake.NewFactory()
	timeout := 100 * time.Millisecond
	var c *Connector
	start := time.Now()
	reactortest.Do(t, r, func() {
		c = Connect(r, "slow.test", 80, client, timeout, "")
		assert.Equal(t, api.ConnectorConnecting, c.State())
	})

	err := reactortest.Receive(t, client.Failed)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, api.ErrConnectTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)

	reactortest.Do(t, r, func() { assert.Equal(t, api.ConnectorDisconnected, c.State()) })
	started, stopped, attempts := client.Counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, attempts)
}

func TestStopConnectingBeforeTimeout(t *testing.T) {
	res := fake.NewResolver()
	res.Block()
	r := reactortest.Start(t, reactor.WithResolver(res))

	client := fake.NewFactory()
	var c *Connector
	reactortest.Do(t, r, func() {
		c = Connect(r, "slow.test", 80, client, 100*time.Millisecond, "")
	})
	reactortest.Do(t, r, c.StopConnecting)
	assert.ErrorIs(t, reactortest.Receive(t, client.Failed), api.ErrCancelled)

	// the timeout was cancelled with the attempt
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, client.Failed)
	reactortest.Do(t, r, func() {
		assert.Equal(t, api.ConnectorDisconnected, c.State())
		c.StopConnecting()
	})
	assert.Empty(t, client.Failed)
}

func TestStopConnectingWhenConnectedIsNoop(t *testing.T) {
	r := reactortest.Start(t)
	_, port := listen(t, r, fake.NewFactory())
	client := fake.NewFactory()
	c := connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)

	reactortest.Do(t, r, func() {
		c.StopConnecting()
		assert.Equal(t, api.ConnectorConnected, c.State())
		assert.Equal(t, api.StateConnected, cp.Transport().State())
	})
	assert.Empty(t, client.Failed)
}

func TestResolutionFailure(t *testing.T) {
	res := fake.NewResolver()
	r := reactortest.Start(t, reactor.WithResolver(res))
	client := fake.NewFactory()
	reactortest.Do(t, r, func() { Connect(r, "nowhere.test", 80, client, time.Second, "") })
	assert.ErrorIs(t, reactortest.Receive(t, client.Failed), api.ErrResolution)
}

func TestResolvedCandidatesTriedInOrder(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on the whole 127/8 block being local")
	}
	res := fake.NewResolver()
	res.Set("multi.test", "127.0.0.3", "127.0.0.1")
	r := reactortest.Start(t, reactor.WithResolver(res))
	server := fake.NewFactory()
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	reactortest.Do(t, r, func() { Connect(r, "multi.test", port, client, time.Second, "") })
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	assert.Equal(t, []string{"multi.test"}, res.Lookups())
	assert.Equal(t, "127.0.0.1", client.Addresses()[0].Host)
}

func TestHalfClose(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	halves := make(chan *fake.HalfCloseProtocol, 1)
	server.Build = func(api.Address) api.Protocol {
		p := fake.NewHalfCloseProtocol()
		halves <- p
		return p
	}
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Do(t, r, func() {
		cp.Transport().Write([]byte("bye"))
		cp.Transport().LoseWriteConnection()
		cp.Transport().Write([]byte("dropped"))
	})

	sp := reactortest.Receive(t, halves)
	reactortest.Receive(t, sp.ReadLost)
	assert.Equal(t, []byte("bye"), sp.Received())

	reactortest.Do(t, r, func() {
		assert.Equal(t, api.StateConnected, sp.Transport().State())
		sp.Transport().Write([]byte("ack"))
		sp.Transport().LoseConnection()
	})
	assert.Equal(t, []byte("ack"), reactortest.Receive(t, cp.Data))
	assert.ErrorIs(t, reactortest.Receive(t, cp.Lost), api.ErrConnectionDone)
	assert.ErrorIs(t, reactortest.Receive(t, sp.Lost), api.ErrConnectionDone)
}

func TestPauseAndResumeProducing(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	server.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnMade = func(p *fake.Protocol) { p.Transport().PauseProducing() }
		return p
	}
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Made)

	reactortest.Do(t, r, func() { cp.Transport().Write([]byte("held")) })
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sp.Received())

	reactortest.Do(t, r, func() { sp.Transport().ResumeProducing() })
	assert.Equal(t, []byte("held"), reactortest.Receive(t, sp.Data))
}

func TestFactoryRefusal(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	server.Build = func(api.Address) api.Protocol { return nil }
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Receive(t, cp.Lost)
	assert.Empty(t, cp.Received())
}

func TestPanicInDataReceivedDropsConnection(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	server.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnData = func(*fake.Protocol, []byte) { panic("bad input") }
		return p
	}
	_, port := listen(t, r, server)

	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Do(t, r, func() { cp.Transport().Write([]byte("boom")) })

	sp := reactortest.Receive(t, server.Built)
	reason := reactortest.Receive(t, sp.Lost)
	assert.ErrorIs(t, reason, api.ErrConnectionLost)
	assert.Contains(t, reason.Error(), "bad input")
}

func TestShutdownStopsListeners(t *testing.T) {
	r := reactor.New()
	server := fake.NewFactory()
	var l *Listener
	r.CallFromThread(func() {
		var err error
		l, err = Listen(r, 0, server, "127.0.0.1")
		require.NoError(t, err)
		r.Stop()
	})
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.NoError(t, reactortest.Receive(t, done))

	assert.False(t, l.Accepting())
	_, stopped, _ := server.Counts()
	assert.Equal(t, 1, stopped)
}

func TestMetricsCountTraffic(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	_, port := listen(t, r, server)
	client := fake.NewFactory()
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	reactortest.Do(t, r, func() { cp.Transport().Write([]byte("12345")) })
	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Data)

	m := r.Metrics()
	assert.Equal(t, int64(2), m.ConnectionsOpened.Count())
	assert.GreaterOrEqual(t, m.BytesWritten.Count(), int64(5))
	assert.GreaterOrEqual(t, m.BytesRead.Count(), int64(5))
}

// run drives r on its own goroutine; the returned channel yields Run's
// result.
func run(t *testing.T, r *reactor.Reactor) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, r.Running, reactortest.Timeout, time.Millisecond)
	return done
}

func TestShutdownClosesConnections(t *testing.T) {
	r := reactor.New()
	done := run(t, r)

	server := fake.NewFactory()
	_, port := listen(t, r, server)
	client := fake.NewFactory()
	c := connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)
	sp := reactortest.Receive(t, server.Built)
	reactortest.Receive(t, sp.Made)

	r.Stop()
	require.NoError(t, reactortest.Receive(t, done))

	// delivered before Run returned
	require.Len(t, cp.LostReasons(), 1)
	require.Len(t, sp.LostReasons(), 1)
	assert.ErrorIs(t, cp.LostReasons()[0], api.ErrConnectionDone)
	assert.ErrorIs(t, sp.LostReasons()[0], api.ErrConnectionDone)
	assert.ErrorIs(t, reactortest.Receive(t, client.Lost), api.ErrConnectionDone)
	assert.Equal(t, api.ConnectorDisconnected, c.State())
	assert.Equal(t, int64(2), r.Metrics().ConnectionsClosed.Count())
}

func TestShutdownAbortsConnectionsThatCannotFlush(t *testing.T) {
	// a peer that never reads
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	r := reactor.New(reactor.WithShutdownTimeout(100 * time.Millisecond))
	done := run(t, r)

	client := fake.NewFactory()
	client.Build = func(api.Address) api.Protocol {
		p := fake.NewProtocol()
		p.OnMade = func(p *fake.Protocol) {
			p.Transport().Write(bytes.Repeat([]byte("w"), 32<<20))
		}
		return p
	}
	connect(t, r, port, client)
	cp := reactortest.Receive(t, client.Built)
	reactortest.Receive(t, cp.Made)

	r.Stop()
	require.NoError(t, reactortest.Receive(t, done))
	require.Len(t, cp.LostReasons(), 1)
	assert.ErrorIs(t, cp.LostReasons()[0], api.ErrConnectionAborted)
}
