package sync

import (
	"errors"
	"sync"
	"time"
)

// ErrSyncRunning is returned when a run is requested while another one holds
// the run token.
var ErrSyncRunning = errors.New("a sync is already running")

// runState is the explicit run token. Manual, scheduled, and import runs all
// acquire it, so at most one batch write path is active at a time.
type runState struct {
	mu      sync.Mutex
	active  bool
	scope   string
	trigger string
	since   time.Time
}

// tryAcquire claims the token, returning a release func. Fails immediately
// with ErrSyncRunning when the token is held; callers never queue.
func (s *runState) tryAcquire(scope, trigger string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil, ErrSyncRunning
	}
	s.active = true
	s.scope = scope
	s.trigger = trigger
	s.since = time.Now()

	return func() {
		s.mu.Lock()
		s.active = false
		s.scope = ""
		s.trigger = ""
		s.mu.Unlock()
	}, nil
}

// RunInfo describes the currently held run token.
type RunInfo struct {
	Active  bool      `json:"active"`
	Scope   string    `json:"scope,omitempty"`
	Trigger string    `json:"trigger,omitempty"`
	Since   time.Time `json:"since,omitempty"`
}

func (s *runState) info() RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunInfo{Active: s.active, Scope: s.scope, Trigger: s.trigger, Since: s.since}
}
