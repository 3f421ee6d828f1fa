// File: reactor/reactortest/reactortest.go
// Author: momentics <momentics@gmail.com>

// Package reactortest runs a reactor for the duration of a test.
package reactortest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/reactor"
)

// Timeout bounds every wait in these helpers.
const Timeout = 5 * time.Second

// Start runs a reactor on its own goroutine and stops it when the test
// ends.
func Start(t testing.TB, opts ...reactor.Option) *reactor.Reactor {
	t.Helper()
	r := reactor.New(opts...)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, r.Running, Timeout, time.Millisecond)
	t.Cleanup(func() {
		r.Stop()
		select {
		case <-done:
		case <-time.After(Timeout):
			t.Error("reactor did not stop")
		}
	})
	return r
}

// Do runs fn on the loop and waits for it to return.
func Do(t testing.TB, r *reactor.Reactor, fn func()) {
	t.Helper()
	done := make(chan struct{})
	r.CallFromThread(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(Timeout):
		t.Fatal("reactor task did not run")
	}
}

// Receive waits for a value on ch.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}
