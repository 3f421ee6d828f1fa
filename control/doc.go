// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the reactor.
//
// Provides:
//   - append-only go-metrics counters for connections, bytes and loop activity
//   - named debug probes with platform-specific additions
package control
