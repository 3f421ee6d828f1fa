// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"context"
	"fmt"
	"sync"
)

// Resolver answers lookups from a table. Blocked lookups wait until their
// context is done, which makes connect timeouts deterministic in tests.
type Resolver struct {
	mu      sync.Mutex
	answers map[string][]string
	errs    map[string]error
	blocked bool
	lookups []string
}

// NewResolver returns an empty resolver; unknown hosts fail.
func NewResolver() *Resolver {
	return &Resolver{
		answers: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

// Set answers host with addrs, in order.
func (r *Resolver) Set(host string, addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[host] = addrs
	delete(r.errs, host)
}

// Fail makes lookups of host return err.
func (r *Resolver) Fail(host string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[host] = err
}

// Block makes every later lookup hang until its context is done.
func (r *Resolver) Block() {
	r.mu.Lock()
	r.blocked = true
	r.mu.Unlock()
}

// Lookups returns the hosts looked up so far.
func (r *Resolver) Lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lookups...)
}

func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	r.lookups = append(r.lookups, host)
	blocked := r.blocked
	addrs, ok := r.answers[host]
	err := r.errs[host]
	r.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return addrs, nil
}
