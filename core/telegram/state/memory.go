package state

import (
	"sync"
)

// entry guards a single session. mu is held for the whole duration of an update,
// including any blocking I/O the caller performs inside it.
type entry[S any] struct {
	mu      sync.Mutex
	session S
}

// Store keeps one session of type S per key. The zero value of S is the initial session.
type Store[S any] struct {
	mu       sync.Mutex
	sessions map[int64]*entry[S]
}

// NewStore constructs an empty in-memory Store.
func NewStore[S any]() *Store[S] {
	return &Store[S]{sessions: make(map[int64]*entry[S])}
}

func (s *Store[S]) entry(key int64) *entry[S] {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		e = &entry[S]{}
		s.sessions[key] = e
	}
	return e
}

// Update runs fn with exclusive access to the session for key, creating it on first use.
// Changes made through the pointer are kept even when fn returns an error.
func (s *Store[S]) Update(key int64, fn func(*S) error) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.session)
}

// Get returns a copy of the session for key, or the zero session when none exists.
func (s *Store[S]) Get(key int64) S {
	s.mu.Lock()
	e, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		var zero S
		return zero
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Clear resets the session for key to its zero value.
func (s *Store[S]) Clear(key int64) {
	_ = s.Update(key, func(sess *S) error {
		var zero S
		*sess = zero
		return nil
	})
}

// Len reports how many keys have a session entry.
func (s *Store[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
