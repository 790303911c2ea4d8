package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps keys for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time), now: time.Now}
}

// MarkProcessed implements Store. A zero ttl never expires.
func (s *MemoryStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveLocked(key) {
		return false, nil
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}
	s.entries[key] = expiry
	return true, nil
}

// IsProcessed implements Store.
func (s *MemoryStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(key), nil
}

func (s *MemoryStore) liveLocked(key string) bool {
	expiry, ok := s.entries[key]
	if !ok {
		return false
	}
	if !expiry.IsZero() && !s.now().Before(expiry) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
