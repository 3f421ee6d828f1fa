package endpoints

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/deferred"
	"github.com/momentics/hioload-reactor/fake"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/reactor/reactortest"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"tcp", "80", `interface=\:\:1`}, split(`tcp:80:interface=\:\:1`, ':', -1))
	assert.Equal(t, []string{"a", "b=c"}, split("a=b=c", '=', 2))
	assert.Equal(t, "::1", unescape(`\:\:1`))
	assert.Equal(t, `a\b`, unescape(`a\\b`))
}

func TestServerFromString(t *testing.T) {
	r := reactor.New()
	tests := []struct {
		desc string
		want ServerEndpoint
	}{
		{"tcp:28001", &TCPServerEndpoint{Reactor: r, Port: 28001}},
		{"TCP:port=80:interface=127.0.0.1", &TCPServerEndpoint{Reactor: r, Port: 80, Interface: "127.0.0.1"}},
		{`tcp:0:interface=\:\:1:backlog=50`, &TCPServerEndpoint{Reactor: r, Interface: "::1", Backlog: 50}},
		{"unix:/run/app.sock", &UNIXServerEndpoint{Reactor: r, Path: "/run/app.sock", Mode: 0o666}},
		{"unix:address=/tmp/x:mode=600", &UNIXServerEndpoint{Reactor: r, Path: "/tmp/x", Mode: 0o600}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ServerFromString(r, tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientFromString(t *testing.T) {
	r := reactor.New()
	tests := []struct {
		desc string
		want ClientEndpoint
	}{
		{"tcp:example.com:80", &TCPClientEndpoint{Reactor: r, Host: "example.com", Port: 80}},
		{"tcp:host=h:port=1:timeout=2.5", &TCPClientEndpoint{Reactor: r, Host: "h", Port: 1, Timeout: 2500 * time.Millisecond}},
		{"tcp:host=h:port=1:bindAddress=10.0.0.2", &TCPClientEndpoint{Reactor: r, Host: "h", Port: 1, BindAddress: "10.0.0.2:0"}},
		{`tcp:host=h:port=1:bindAddress=10.0.0.2\:4000`, &TCPClientEndpoint{Reactor: r, Host: "h", Port: 1, BindAddress: "10.0.0.2:4000"}},
		{"unix:path=/run/app.sock:timeout=1", &UNIXClientEndpoint{Reactor: r, Path: "/run/app.sock", Timeout: time.Second}},
		{"unix:/run/app.sock", &UNIXClientEndpoint{Reactor: r, Path: "/run/app.sock"}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ClientFromString(r, tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidDescriptions(t *testing.T) {
	r := reactor.New()
	servers := []string{
		"",
		"tcp",
		"tcp:http",
		"tcp:70000",
		"tcp:80:81",
		"tcp:80:backlog=-1",
		"tcp:80:color=blue",
		"tcp:port=80:port=81",
		"tcp:interface=lo:80",
		"unix:",
		"unix:/x:mode=999",
		"ssl:443",
	}
	for _, desc := range servers {
		_, err := ServerFromString(r, desc)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, desc)
		assert.ErrorIs(t, err, api.ErrInvalidArgument, desc)
	}

	clients := []string{
		"tcp:port=80",
		"tcp:host=h",
		"tcp:host=h:port=1:timeout=soon",
		"tcp:host=h:port=1:timeout=-1",
		"unix:timeout=1",
		"udp:h:53",
	}
	for _, desc := range clients {
		_, err := ClientFromString(r, desc)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, desc)
	}
}

// wait returns the result the Deferred fires with.
func wait(t *testing.T, r *reactor.Reactor, fire func() *deferred.Deferred) (any, error) {
	t.Helper()
	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	reactortest.Do(t, r, func() {
		fire().AddCallbacks(func(v any) (any, error) {
			ch <- outcome{v: v}
			return nil, nil
		}, func(f *deferred.Failure) (any, error) {
			ch <- outcome{err: f}
			return nil, nil
		})
	})
	o := reactortest.Receive(t, ch)
	return o.v, o.err
}

func TestListenAndConnectTCP(t *testing.T) {
	r := reactortest.Start(t)
	server := fake.NewFactory()
	se, err := ServerFromString(r, "tcp:0:interface=127.0.0.1")
	require.NoError(t, err)

	v, err := wait(t, r, func() *deferred.Deferred { return se.Listen(server) })
	require.NoError(t, err)
	l := v.(api.Listener)
	var port uint16
	reactortest.Do(t, r, func() {
		addr, err := l.Address()
		require.NoError(t, err)
		port = addr.Port
	})

	ce := &TCPClientEndpoint{Reactor: r, Host: "127.0.0.1", Port: port, Timeout: time.Second}
	client := fake.NewFactory()
	v, err = wait(t, r, func() *deferred.Deferred { return ce.Connect(client) })
	require.NoError(t, err)
	p := v.(*fake.Protocol)
	assert.Equal(t, 1, p.MadeCount())
	started, _, _ := client.Counts()
	assert.Equal(t, 1, started)

	reactortest.Do(t, r, func() { p.Transport().Write([]byte("hi")) })
	sp := reactortest.Receive(t, server.Built)
	assert.Equal(t, []byte("hi"), reactortest.Receive(t, sp.Data))

	// the listening port is taken now
	_, err = wait(t, r, func() *deferred.Deferred {
		return (&TCPServerEndpoint{Reactor: r, Port: port, Interface: "127.0.0.1"}).Listen(server)
	})
	assert.ErrorIs(t, err, api.ErrBind)
}

func TestConnectFailure(t *testing.T) {
	r := reactortest.Start(t)
	dir, err := os.MkdirTemp("", "ep")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	ce, err := ClientFromString(r, "unix:"+filepath.Join(dir, "missing.sock"))
	require.NoError(t, err)
	_, err = wait(t, r, func() *deferred.Deferred { return ce.Connect(fake.NewFactory()) })
	assert.Error(t, err)
}

func TestConnectRefusedByFactory(t *testing.T) {
	r := reactortest.Start(t)
	dir, err := os.MkdirTemp("", "ep")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	_, err = wait(t, r, func() *deferred.Deferred {
		return (&UNIXServerEndpoint{Reactor: r, Path: path}).Listen(fake.NewFactory())
	})
	require.NoError(t, err)

	refusing := fake.NewFactory()
	refusing.Build = func(api.Address) api.Protocol { return nil }
	_, err = wait(t, r, func() *deferred.Deferred {
		return (&UNIXClientEndpoint{Reactor: r, Path: path}).Connect(refusing)
	})
	assert.ErrorIs(t, err, api.ErrConnectionAborted)
}

func TestCancelConnect(t *testing.T) {
	res := fake.NewResolver()
	res.Block()
	r := reactortest.Start(t, reactor.WithResolver(res))
	ce := &TCPClientEndpoint{Reactor: r, Host: "slow.test", Port: 80}
	client := fake.NewFactory()

	var d *deferred.Deferred
	reactortest.Do(t, r, func() { d = ce.Connect(client) })
	failed := make(chan error, 1)
	reactortest.Do(t, r, func() {
		d.AddErrback(func(f *deferred.Failure) (any, error) {
			failed <- f
			return nil, nil
		})
		d.Cancel()
	})
	assert.ErrorIs(t, reactortest.Receive(t, failed), api.ErrCancelled)
	_, stopped, _ := client.Counts()
	assert.Equal(t, 1, stopped)
}

func TestWrapperKeepsHalfClose(t *testing.T) {
	d := deferred.New()
	inner := fake.NewFactory()
	inner.Build = func(api.Address) api.Protocol { return fake.NewHalfCloseProtocol() }
	wf := &wrappingFactory{factory: inner, d: d}

	p := wf.BuildProtocol(api.Address{})
	hc, ok := p.(api.HalfCloseableProtocol)
	require.True(t, ok)

	conn := fake.NewConnection(api.Address{}, api.Address{})
	conn.Connect(hc)
	v, called := d.Result()
	require.True(t, called)
	inner2 := v.(*fake.HalfCloseProtocol)
	hc.ReadConnectionLost()
	reactortest.Receive(t, inner2.ReadLost)

	wf.ClientConnectionLost(nil, api.ErrConnectionDone)
	v, _ = d.Result()
	assert.Same(t, inner2, v)
}
