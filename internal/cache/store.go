package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a missing key. A returned error leaves the key unpopulated.
type Loader[V any] func(ctx context.Context) (V, error)

// Store is a run-scoped memoization table. Entries are never evicted or overwritten:
// the first value written for a key is the value every later reader sees.
type Store[K comparable, V any] struct {
	name string

	mu      sync.RWMutex
	entries map[K]V
	hits    int
	misses  int

	group singleflight.Group
}

// NewStore creates an empty store. The name identifies the cache category in logs and stats.
func NewStore[K comparable, V any](name string) *Store[K, V] {
	return &Store[K, V]{
		name:    name,
		entries: make(map[K]V),
	}
}

// Name returns the cache category.
func (s *Store[K, V]) Name() string {
	return s.name
}

// Get returns the cached value and records a hit when present.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if ok {
		s.hits++
		log.Debug().Str("cache", s.name).Interface("key", key).Msg("Cache hit")
	}
	return v, ok
}

// Peek reports whether key is populated without touching the counters.
func (s *Store[K, V]) Peek(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Put stores value under key unless the key is already populated.
// It reports whether the value was stored.
func (s *Store[K, V]) Put(key K, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = value
	log.Debug().Str("cache", s.name).Interface("key", key).Msg("Added to cache")
	return true
}

// GetOrLoad returns the cached value for key, invoking load on a miss.
// Concurrent callers missing the same key share one load; only the caller that
// performed the load counts as a miss, everyone else counts as a hit.
func (s *Store[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[V]) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	ran := false
	res, err, _ := s.group.Do(fmt.Sprint(key), func() (any, error) {
		// Another flight may have completed between Get and Do.
		if v, ok := s.Peek(key); ok {
			return v, nil
		}

		ran = true
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		log.Debug().Str("cache", s.name).Interface("key", key).Msg("Cache miss")

		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		s.Put(key, v)
		// First write wins: a concurrent Put may have raced ahead of us.
		stored, _ := s.Peek(key)
		return stored, nil
	})
	if !ran {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of populated keys.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns a snapshot of the store's counters.
func (s *Store[K, V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Name:    s.name,
		Hits:    s.hits,
		Misses:  s.misses,
		Entries: len(s.entries),
	}
}

// Stats is a point-in-time view of one cache category.
type Stats struct {
	Name    string `json:"name"`
	Hits    int    `json:"hits"`
	Misses  int    `json:"misses"`
	Entries int    `json:"entries"`
}

// Reporter is implemented by anything exposing cache counters.
type Reporter interface {
	Stats() Stats
}

// Collect gathers the counters of several stores in the given order.
func Collect(stores ...Reporter) []Stats {
	out := make([]Stats, 0, len(stores))
	for _, s := range stores {
		out = append(out, s.Stats())
	}
	return out
}
