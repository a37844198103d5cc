// Package cachetest provides an in-process cache.Cache for tests.
package cachetest

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"time"

	"mybank/pkg/cache"
)

var ErrUnreachable = errors.New("connection refused")

// Memory stores JSON-encoded values and matches patterns with path.Match.
// Expiration is ignored.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// FailReads makes every Get return ErrUnreachable.
func (m *Memory) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGet = fail
}

func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *Memory) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return ErrUnreachable
	}
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

var _ cache.Cache = (*Memory)(nil)
