package ratelimit

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps windows in process memory. Entries expire with their
// window and a janitor sweeps them every cleanupInterval, so the map stays
// bounded by the number of clients active within one window.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultWindow
	}
	return &MemoryStore{cache: cache.New(DefaultWindow, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Window, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return Window{}, false, nil
	}
	w, ok := v.(Window)
	return w, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, w Window, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	s.cache.Set(key, w, ttl)
	return nil
}

// Len returns the number of live entries, expired-but-unswept included.
func (s *MemoryStore) Len() int { return s.cache.ItemCount() }

// Sweep evicts expired windows immediately.
func (s *MemoryStore) Sweep() { s.cache.DeleteExpired() }
