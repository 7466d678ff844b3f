// Package lifecycle tracks process readiness and shutdown for health checks.
package lifecycle

import "sync/atomic"

// State holds the readiness and shutdown flags. The zero value is not ready
// and not shutting down.
type State struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
}

// SetReady marks startup complete (store reachable, admin seeded).
func (s *State) SetReady(v bool) {
	s.ready.Store(v)
}

// IsReady reports whether startup has completed.
func (s *State) IsReady() bool {
	return s.ready.Load()
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// Health returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}
