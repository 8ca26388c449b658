package indicator

import (
	"sync"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// State publishes the latest indicator snapshot from the indicator loop to
// the decision loop. The tuple is replaced and read atomically under one
// lock so a reader never sees a signal from one computation paired with a
// stop from another.
type State struct {
	mu    sync.RWMutex
	snap  domain.IndicatorSnapshot
	ready bool
}

func NewState() *State { return &State{} }

// Set replaces the published snapshot.
func (s *State) Set(snap domain.IndicatorSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.ready = true
	s.mu.Unlock()
}

// Get returns the latest snapshot. ok is false until the first Set, which in
// turn only happens once the warm-up bar count is reached.
func (s *State) Get() (domain.IndicatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.ready
}
