package carrier

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	info      Info
	expiresAt time.Time
}

// MemoryStore is a per-process Store backed by a map.
type MemoryStore struct {
	sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   now,
	}
}

// Get returns the entry for mccmnc if it has not expired.
func (s *MemoryStore) Get(_ context.Context, mccmnc string) (Info, bool, error) {
	s.RLock()
	item, exists := s.items[mccmnc]
	s.RUnlock()

	if !exists {
		return Info{}, false, nil
	}

	if !s.now().Before(item.expiresAt) {
		s.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if current, ok := s.items[mccmnc]; ok && current.expiresAt.Equal(item.expiresAt) {
			delete(s.items, mccmnc)
		}
		s.Unlock()
		return Info{}, false, nil
	}

	return item.info, true, nil
}

// Set stores info until now+ttl.
func (s *MemoryStore) Set(_ context.Context, mccmnc string, info Info, ttl time.Duration) error {
	s.Lock()
	defer s.Unlock()

	s.items[mccmnc] = memoryItem{
		info:      info,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Delete removes the entry for mccmnc.
func (s *MemoryStore) Delete(_ context.Context, mccmnc string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.items, mccmnc)
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.Lock()
	defer s.Unlock()
	s.items = make(map[string]memoryItem)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.items)
}
