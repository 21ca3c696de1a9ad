package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "dashboard:24h", []byte(`{"domains":[]}`), time.Minute)

	got, ok := s.Get(ctx, "dashboard:24h")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"domains":[]}`), got)

	_, ok = s.Get(ctx, "dashboard:7d")
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 2*time.Minute)

	now = now.Add(time.Minute)
	_, ok := s.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, "in_memory_0_entries", s.Status())
}

func TestMemoryStoreDeleteAndClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.Set(ctx, "b", []byte("2"), time.Minute)

	s.Delete(ctx, "a")
	_, ok := s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "b")
	assert.True(t, ok)

	s.ClearAll(ctx)
	_, ok = s.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, "in_memory_0_entries", s.Status())
}

func TestMemoryStoreSweepsExpiredPastThreshold(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < sweepThreshold; i++ {
		s.Set(ctx, fmt.Sprintf("stale_%d", i), []byte("v"), time.Minute)
	}

	// All of the above expire; the next Set pushes the count past the
	// threshold and triggers the sweep.
	now = now.Add(2 * time.Minute)
	s.Set(ctx, "fresh", []byte("v"), time.Minute)

	assert.Equal(t, "in_memory_1_entries", s.Status())
	_, ok := s.Get(ctx, "fresh")
	assert.True(t, ok)
}
