package scheduling

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlowStore keeps booking flows in memory until they sit idle for longer
// than the TTL.
type FlowStore struct {
	mu    sync.RWMutex
	flows map[uuid.UUID]*Flow
	ttl   time.Duration
	now   func() time.Time
}

func NewFlowStore(ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &FlowStore{flows: make(map[uuid.UUID]*Flow), ttl: ttl, now: time.Now}
}

// Put stores f under its id.
func (s *FlowStore) Put(f *Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.ID()] = f
}

// Get returns a live flow and refreshes its idle timer.
func (s *FlowStore) Get(id uuid.UUID) (*Flow, error) {
	s.mu.RLock()
	f, ok := s.flows[id]
	s.mu.RUnlock()
	now := s.now()
	if !ok || now.Sub(f.lastTouched()) > s.ttl {
		return nil, ErrFlowNotFound
	}
	f.touch(now)
	return f, nil
}

// Purge drops flows idle for longer than the TTL and returns how many.
func (s *FlowStore) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, f := range s.flows {
		if now.Sub(f.lastTouched()) > s.ttl {
			delete(s.flows, id)
			n++
		}
	}
	return n
}

func (s *FlowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}
