package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// InMemoryShortTerm is a process-local ShortTermStore. Buckets are append-only
// slices guarded by an RWMutex; an LRU cache serves repeated Recent reads of
// hot sessions without holding the write lock.
type InMemoryShortTerm struct {
	mu      sync.RWMutex
	buckets map[string][]Entry
	cache   *lru.Cache[string, []Entry]
}

// NewInMemoryShortTerm creates a store caching up to cacheSize hot buckets.
func NewInMemoryShortTerm(cacheSize int) (*InMemoryShortTerm, error) {
	if cacheSize < 1 {
		cacheSize = 128
	}
	cache, err := lru.New[string, []Entry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create short-term cache: %w", err)
	}
	return &InMemoryShortTerm{
		buckets: make(map[string][]Entry),
		cache:   cache,
	}, nil
}

// Append implements ShortTermStore.
func (s *InMemoryShortTerm) Append(ctx context.Context, key string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.buckets[key] = append(s.buckets[key], entry)
	s.mu.Unlock()

	s.cache.Remove(key)
	return nil
}

// Recent implements ShortTermStore.
func (s *InMemoryShortTerm) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	entries, ok := s.cache.Get(key)
	if !ok {
		s.mu.RLock()
		bucket := s.buckets[key]
		entries = make([]Entry, len(bucket))
		copy(entries, bucket)
		s.mu.RUnlock()
		s.cache.Add(key, entries)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Keys implements ShortTermStore.
func (s *InMemoryShortTerm) Keys(ctx context.Context, userID string, day time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("mem:%s:%s:", userID, day.UTC().Format("2006-01-02"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.buckets {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
