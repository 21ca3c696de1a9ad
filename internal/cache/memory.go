package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// sweepThreshold is the entry count past which a Set triggers an eager sweep
// of expired entries. Expiry is otherwise lazy, checked on read.
const sweepThreshold = 1000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process backend. Safe for concurrent use by request
// handlers and the scheduler loops.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	if len(s.entries) > sweepThreshold {
		s.sweepLocked()
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) ClearAll(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
}

func (s *MemoryStore) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("in_memory_%d_entries", len(s.entries))
}

// sweepLocked removes every expired entry. Purely expiry-based, not an LRU.
func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
