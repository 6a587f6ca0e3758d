// Package cache implements the fast cache: a small synchronous key/value
// store holding the working copy of every dataset for the current session.
//
// Values are serialized tabular text keyed by dataset name, plus a few
// non-dataset keys such as the study mode. Reads and writes are
// synchronous and hit the backing medium directly, so concurrent
// processes sharing a home directory observe each other's writes.
package cache

import (
	"sort"
	"sync"

	"github.com/freshstart/freshstart/internal/store"
)

// DefaultQuota is the default capacity of a cache in bytes.
const DefaultQuota = 5 << 20

// Cache is the fast cache contract.
type Cache interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key. It fails with store.ErrQuotaExceeded
	// when the total size would exceed the quota.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Clear removes every key.
	Clear() error

	// Keys lists the stored keys in sorted order.
	Keys() ([]string, error)
}

// Memory is an in-process cache, used in tests and for dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	quota  int
}

// NewMemory returns an empty in-memory cache. A quota <= 0 selects
// DefaultQuota.
func NewMemory(quota int) *Memory {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Memory{values: make(map[string]string), quota: quota}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := len(key) + len(value)
	for k, v := range m.values {
		if k != key {
			size += len(k) + len(v)
		}
	}
	if size > m.quota {
		return store.ErrQuotaExceeded
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Dataset reads a dataset from the cache. An absent dataset returns
// store.ErrAbsent.
func Dataset(c Cache, d store.Dataset) (string, error) {
	v, ok, err := c.Get(d.String())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", store.ErrAbsent
	}
	return v, nil
}
