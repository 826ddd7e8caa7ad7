package tle

import (
	"sync/atomic"
	"time"
)

// Store publishes the current Catalog snapshot. Readers always observe either
// the previous or the next complete Catalog, never a partial one.
type Store struct {
	catalog atomic.Pointer[Catalog]
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none has been published.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Set atomically replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.catalog.Store(c)
}

// Age returns the age of the current catalog at now.
// Returns -1 if no catalog is loaded.
func (s *Store) Age(now time.Time) time.Duration {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return now.Sub(c.FetchedAt)
}
