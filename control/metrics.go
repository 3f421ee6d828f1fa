// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Append-only transport counters backed by go-metrics.

package control

import (
	metrics "github.com/rcrowley/go-metrics"
)

// Counter names as registered in the metrics registry.
const (
	MetricConnectionsOpened = "transport.ConnectionsOpened"
	MetricConnectionsClosed = "transport.ConnectionsClosed"
	MetricBytesRead         = "transport.BytesRead"
	MetricBytesWritten      = "transport.BytesWritten"
	MetricAcceptErrors      = "listener.AcceptErrors"
	MetricConnectAttempts   = "connector.Attempts"
	MetricConnectFailures   = "connector.Failures"
	MetricTasksRun          = "reactor.TasksRun"
	MetricTimersFired       = "reactor.TimersFired"
	MetricPanicsRecovered   = "reactor.PanicsRecovered"
)

// Metrics groups the counters updated by the reactor and its transports.
// Counters are only ever incremented.
type Metrics struct {
	registry metrics.Registry

	ConnectionsOpened metrics.Counter
	ConnectionsClosed metrics.Counter
	BytesRead         metrics.Counter
	BytesWritten      metrics.Counter
	AcceptErrors      metrics.Counter
	ConnectAttempts   metrics.Counter
	ConnectFailures   metrics.Counter
	TasksRun          metrics.Counter
	TimersFired       metrics.Counter
	PanicsRecovered   metrics.Counter
}

// NewMetrics registers a fresh set of counters. A nil registry gets a
// private one, so several reactors in one process don't share counts.
func NewMetrics(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Metrics{
		registry:          r,
		ConnectionsOpened: metrics.NewRegisteredCounter(MetricConnectionsOpened, r),
		ConnectionsClosed: metrics.NewRegisteredCounter(MetricConnectionsClosed, r),
		BytesRead:         metrics.NewRegisteredCounter(MetricBytesRead, r),
		BytesWritten:      metrics.NewRegisteredCounter(MetricBytesWritten, r),
		AcceptErrors:      metrics.NewRegisteredCounter(MetricAcceptErrors, r),
		ConnectAttempts:   metrics.NewRegisteredCounter(MetricConnectAttempts, r),
		ConnectFailures:   metrics.NewRegisteredCounter(MetricConnectFailures, r),
		TasksRun:          metrics.NewRegisteredCounter(MetricTasksRun, r),
		TimersFired:       metrics.NewRegisteredCounter(MetricTimersFired, r),
		PanicsRecovered:   metrics.NewRegisteredCounter(MetricPanicsRecovered, r),
	}
}

// Registry exposes the underlying registry for exporters.
func (m *Metrics) Registry() metrics.Registry {
	return m.registry
}

// Snapshot returns the current value of every counter by name.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	m.registry.Each(func(name string, v interface{}) {
		if c, ok := v.(metrics.Counter); ok {
			out[name] = c.Count()
		}
	})
	return out
}
