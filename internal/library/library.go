// Package library models the imported items owned by the surrounding
// application. The Store stands in for its persistence: enrichment only
// needs somewhere to commit a finished record and a flag to flip.
package library

import (
	"sync"

	"github.com/lepinkainen/folio/internal/metadata"
)

// Item is one imported book file plus its flattened metadata.
// MetadataFetched stays false until enrichment has run to completion,
// successfully or not; it is the only "enrichment done" signal the rest
// of the application observes.
type Item struct {
	Key             string
	Path            string
	Record          metadata.Record
	MetadataFetched bool
}

// Store is a concurrency-safe in-memory item collection keyed by file
// identity.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]*Item)}
}

// Add registers an imported file and returns its item. Re-adding an
// existing key returns the current item unchanged.
func (s *Store) Add(key, path string) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[key]; ok {
		return item
	}
	item := &Item{Key: key, Path: path}
	s.items[key] = item
	return item
}

// Get returns a copy of the item for key.
func (s *Store) Get(key string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Remove deletes the item for key, e.g. when the user deletes the file
// before enrichment finishes.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Commit writes the enriched record onto the item and flips the fetched
// flag. It reports false when the item no longer exists, so a late
// commit after deletion writes nothing.
func (s *Store) Commit(key string, rec metadata.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return false
	}
	item.Record = rec
	item.MetadataFetched = true
	return true
}
