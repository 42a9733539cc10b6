package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// memoryStore implementa Store sobre ttlcache. Un hit no extiende el TTL.
type memoryStore struct {
	c      *ttlcache.Cache[string, []byte]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory crea un store en memoria. capacity 0 significa sin límite.
func NewMemory(capacity uint64) *memoryStore {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	c := ttlcache.New[string, []byte](opts...)
	go c.Start()
	return &memoryStore{c: c}
}

func (m *memoryStore) Get(_ context.Context, key string) (Entry, error) {
	item := m.c.Get(key)
	if item == nil {
		m.misses.Add(1)
		return Entry{}, ErrNotFound
	}
	m.hits.Add(1)
	return Entry{Body: item.Value(), ExpiresAt: item.ExpiresAt()}, nil
}

func (m *memoryStore) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.c.Set(key, body, ttl)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Close() error {
	m.c.Stop()
	m.c.DeleteAll()
	return nil
}

func (m *memoryStore) Stats(context.Context) (Stats, error) {
	return Stats{
		Driver: "memory",
		Keys:   int64(m.c.Len()),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}, nil
}
