// Package dedup remembers which entity instances a session has already reported.
package dedup

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a set of instance ids. Unbounded stores grow for the life of the
// session; bounded stores forget the least recently added id first.
type Store struct {
	mu       sync.Mutex
	capacity int
	set      map[string]struct{}
	lru      *lru.Cache[string, struct{}]
}

// New returns an empty store. capacity <= 0 means unbounded.
func New(capacity int) *Store {
	s := &Store{capacity: capacity}
	s.init()
	return s
}

func (s *Store) init() {
	if s.capacity > 0 {
		c, _ := lru.New[string, struct{}](s.capacity)
		s.lru = c
		s.set = nil
		return
	}
	s.set = make(map[string]struct{})
	s.lru = nil
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru != nil {
		return s.lru.Contains(id)
	}
	_, ok := s.set[id]
	return ok
}

// Add records id and reports whether it was new.
func (s *Store) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru != nil {
		if s.lru.Contains(id) {
			return false
		}
		s.lru.Add(id, struct{}{})
		return true
	}
	if _, ok := s.set[id]; ok {
		return false
	}
	s.set[id] = struct{}{}
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru != nil {
		return s.lru.Len()
	}
	return len(s.set)
}

// Reset forgets every id. Only the session owner calls it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
}

func (s *Store) Capacity() int { return s.capacity }
