// Package state keeps per-user search state in process memory. The store
// is bounded: a max-size LRU caps the map and a background sweep evicts
// entries past their TTL. Worker processes do not share this state; the
// queue store remains the authoritative record of who is searching.
package state

import (
	"container/list"
	"context"
	"log"
	"sync"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
)

const sweepInterval = 60 * time.Second

// Store is a mutex-guarded map of user id to search state with LRU
// eviction on overflow.
type Store struct {
	mu      sync.Mutex
	states  map[int64]*entry
	order   *list.List // front = least recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	state domain.UserState
	elem  *list.Element
}

// NewStore creates a state store bounded to maxSize entries with the given
// TTL per entry.
func NewStore(maxSize int, ttl time.Duration) *Store {
	return &Store{
		states:  make(map[int64]*entry),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Save stores the state, evicting the least recently used entry when the
// store is full.
func (s *Store) Save(state domain.UserState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.states[state.UserID]; ok {
		e.state = state
		s.order.MoveToBack(e.elem)
		return
	}

	e := &entry{state: state}
	e.elem = s.order.PushBack(state.UserID)
	s.states[state.UserID] = e

	if len(s.states) > s.maxSize {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.states, oldest.Value.(int64))
	}
}

// Get returns the state for a user. Expired entries are evicted and
// reported as absent.
func (s *Store) Get(userID int64) (domain.UserState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.states[userID]
	if !ok {
		return domain.UserState{}, false
	}
	if e.state.Expired(s.ttl, s.now()) {
		s.order.Remove(e.elem)
		delete(s.states, userID)
		return domain.UserState{}, false
	}

	s.order.MoveToBack(e.elem)
	return e.state, true
}

// UpdateStatus transitions a user's state to the new status. Missing or
// expired entries are ignored.
func (s *Store) UpdateStatus(userID int64, status domain.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.states[userID]
	if !ok {
		return
	}
	e.state = e.state.WithStatus(status, s.now())
	s.order.MoveToBack(e.elem)
}

// Delete removes a user's state.
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.states[userID]; ok {
		s.order.Remove(e.elem)
		delete(s.states, userID)
	}
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Run sweeps expired entries every minute until the context is canceled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[state] sweep loop stopped")
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				log.Printf("[state] evicted %d expired entries", n)
			}
		}
	}
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, e := range s.states {
		if e.state.Expired(s.ttl, now) {
			s.order.Remove(e.elem)
			delete(s.states, id)
			evicted++
		}
	}
	return evicted
}
