// File: reactor/resolver.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"context"
	"errors"
	"net"

	"github.com/momentics/hioload-reactor/api"
)

// Resolver maps a host name to addresses, in preference order.
// net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type netResolver struct{}

func (netResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// Resolve looks host up off the loop and delivers the result to cb on the
// loop. IP literals complete without a lookup. Failures, including an empty
// answer, are reported as api.ErrResolution; cancelling ctx makes the lookup
// fail early, and the caller is expected to ignore the late completion.
func (r *Reactor) Resolve(ctx context.Context, host string, cb func(addrs []string, err error)) {
	if ip := net.ParseIP(host); ip != nil {
		r.CallSoon(func() { cb([]string{host}, nil) })
		return
	}
	res := r.resolver
	go func() {
		addrs, err := res.LookupHost(ctx, host)
		if err == nil && len(addrs) == 0 {
			err = errors.New("no addresses")
		}
		if err != nil {
			err = api.NewResolutionError(host, err)
			addrs = nil
		}
		r.CallFromThread(func() { cb(addrs, err) })
	}()
}
