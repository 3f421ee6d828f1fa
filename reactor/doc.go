// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-goroutine event loop that owns all
// transport state.
//
// Blocking socket operations run on helper goroutines and post their
// completions back with CallFromThread, so protocol callbacks, timers and
// Deferred chains always execute on the loop goroutine, one at a time.
// Everything except CallFromThread, Stop and the read-only accessors must be
// called on the loop goroutine, or before Run starts it.
package reactor
