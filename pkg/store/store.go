// Package store is the generic persistent key-value layer vaults, settings
// and lock state are written to. Values are opaque bytes; the store never
// interprets them and never sees key material.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Buckets used by keysmith.
const (
	BucketVaults    = "vaults"
	BucketSettings  = "settings"
	BucketLockState = "lockstate"
)

// ErrNotFound indicates no value exists under the requested key.
var ErrNotFound = errors.New("store: not found")

// Item is a key and its stored value.
type Item struct {
	Key   string
	Value []byte
}

// Store is a bucketed key-value store. Put replaces a value atomically:
// readers observe either the previous value or the new one.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	GetAll(ctx context.Context, bucket string) ([]Item, error)
	Close() error
}

// Memory is an in-process Store, used by tests and ephemeral sessions.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

// GetAll returns every item in bucket ordered by key.
func (m *Memory) GetAll(ctx context.Context, bucket string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Item, 0, len(m.buckets[bucket]))
	for k, v := range m.buckets[bucket] {
		items = append(items, Item{Key: k, Value: append([]byte(nil), v...)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (m *Memory) Close() error { return nil }
