package tuning

import "sync"

// Store holds the live tuning behind a revision counter. Every override
// bumps the revision so clients and tests can tell whether a change has
// been observed.
type Store struct {
	mu  sync.RWMutex
	t   Tuning
	rev uint64
}

func NewStore(t Tuning) *Store {
	return &Store{t: t, rev: 1}
}

// Get returns the current tuning and its revision.
func (s *Store) Get() (Tuning, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t, s.rev
}

// Update applies fn to a copy of the current tuning, validates it and,
// on success, installs it under a new revision.
func (s *Store) Update(fn func(*Tuning)) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.t
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.rev, err
	}
	s.t = next
	s.rev++
	return s.rev, nil
}
