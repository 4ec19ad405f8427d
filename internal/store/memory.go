package store

import (
	"context"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryMaxEntries = 4096

type memoryEntry struct {
	value   []byte
	expires time.Time // zero = no expiration (honor only LRU)
}

type memoryStore struct {
	cache *lru.Cache[string, memoryEntry]
	now   func() time.Time
}

type MemoryOption func(*memoryStore)

// MemoryWithClock replaces time.Now for expiry checks.
func MemoryWithClock(now func() time.Time) MemoryOption {
	return func(s *memoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// Memory returns an in-process store bounded by maxEntries (LRU eviction).
// Zero means defaultMemoryMaxEntries.
func Memory(maxEntries int, opts ...MemoryOption) (Store, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryMaxEntries
	}
	cache, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	s := &memoryStore{cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *memoryStore) live(entry memoryEntry) bool {
	return entry.expires.IsZero() || s.now().Before(entry.expires)
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if !s.live(entry) {
		s.cache.Remove(key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.cache.Add(key, entry)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Remove(key)
	}
	return nil
}

func (s *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, key := range s.cache.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, ok := s.cache.Peek(key)
		if !ok || !s.live(entry) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) Close() error {
	s.cache.Purge()
	return nil
}
