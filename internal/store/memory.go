package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process ReplayStore backend: a TTL map guarded by a
// RWMutex. Suitable for a single-instance forwarding server.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time
}

var _ ReplayStore = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (ms *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	ms.mu.RLock()
	entry, ok := ms.data[key]
	ms.mu.RUnlock()

	if !ok || ms.expired(entry) {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (ms *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.data[entry.Key] = entry
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.data, key)
	return nil
}

func (ms *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	purged := 0
	for key, entry := range ms.data {
		if ms.expired(entry) {
			delete(ms.data, key)
			purged++
		}
	}
	return purged, nil
}

func (ms *MemoryStore) Close() {}

func (ms *MemoryStore) expired(entry *Entry) bool {
	return ms.now().Sub(entry.CreatedAt) >= ms.ttl
}
