package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often a LocalStore sweeps expired entries.
const DefaultCleanupInterval = time.Minute

// LocalStore implements Store in process memory.
// This is suitable for single-instance deployments.
type LocalStore struct {
	items *gocache.Cache
}

// NewLocalStore creates an empty in-memory store swept every
// DefaultCleanupInterval.
func NewLocalStore() *LocalStore {
	return NewLocalStoreWithCleanup(DefaultCleanupInterval)
}

// NewLocalStoreWithCleanup creates an empty in-memory store whose expired
// entries are removed every interval.
func NewLocalStoreWithCleanup(interval time.Duration) *LocalStore {
	return &LocalStore{items: gocache.New(gocache.NoExpiration, interval)}
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, nil
	}
	value := v.([]byte)
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *LocalStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// Len reports the number of entries held, including expired ones not yet swept.
func (s *LocalStore) Len() int {
	return s.items.ItemCount()
}

// Close drops every entry.
func (s *LocalStore) Close() error {
	s.items.Flush()
	return nil
}
