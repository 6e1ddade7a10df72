package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type subscriber struct {
	id uint64
	fn func(Entry)
}

// subscribers is the per-key observer registry shared by the cache
// implementations.
type subscribers struct {
	mu     sync.RWMutex
	nextID uint64
	byKey  map[string][]subscriber
}

func (s *subscribers) add(key string, fn func(Entry)) func() {
	s.mu.Lock()
	if s.byKey == nil {
		s.byKey = make(map[string][]subscriber)
	}
	s.nextID++
	id := s.nextID
	s.byKey[key] = append(s.byKey[key], subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.byKey[key]
			for i := range list {
				if list[i].id == id {
					s.byKey[key] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(s.byKey[key]) == 0 {
				delete(s.byKey, key)
			}
		})
	}
}

func (s *subscribers) count(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[key])
}

// notify calls every subscriber of key outside the lock so that callbacks may
// re-enter the cache.
func (s *subscribers) notify(key string, entry Entry) {
	s.mu.RLock()
	list := make([]subscriber, len(s.byKey[key]))
	copy(list, s.byKey[key])
	s.mu.RUnlock()

	for _, sub := range list {
		sub.fn(entry)
	}
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	gens    map[string]uint64
	flight  singleflight.Group
	subs    subscribers
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

func (c *MemoryCache) Load(_ context.Context, key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{Status: StatusUnknown, Generation: c.gens[key]}, nil
	}
	return entry, nil
}

// Store writes entry under the next generation and notifies subscribers
// synchronously.
func (c *MemoryCache) Store(_ context.Context, key string, entry Entry) (Entry, error) {
	c.mu.Lock()
	c.gens[key]++
	entry.Generation = c.gens[key]
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = c.now()
	}
	c.entries[key] = entry
	c.mu.Unlock()

	c.subs.notify(key, entry)
	return entry, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Do runs fn once per key among concurrent callers.
func (c *MemoryCache) Do(ctx context.Context, key string, fn FetchFunc) (Entry, error) {
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return fn(ctx)
	})
	entry, _ := v.(Entry)
	return entry, err
}

func (c *MemoryCache) Subscribe(key string, fn func(Entry)) func() {
	return c.subs.add(key, fn)
}

// Subscribers returns the number of live subscriptions on key.
func (c *MemoryCache) Subscribers(key string) int {
	return c.subs.count(key)
}
