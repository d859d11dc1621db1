package kvstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type entry struct {
	kind  string
	value string
}

// Memory is an in-process Store
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]entry)}
}

func (m *Memory) get(key string) (entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	return e, ok
}

func (m *Memory) put(key, kind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = entry{kind: kind, value: value}
	return nil
}

func (m *Memory) GetString(_ context.Context, key, def string) string {
	if e, ok := m.get(key); ok {
		return e.value
	}
	return def
}

func (m *Memory) GetInt(_ context.Context, key string, def int) int {
	if e, ok := m.get(key); ok {
		return decodeInt(key, e.value, def)
	}
	return def
}

func (m *Memory) GetBool(_ context.Context, key string, def bool) bool {
	if e, ok := m.get(key); ok {
		return decodeBool(key, e.value, def)
	}
	return def
}

func (m *Memory) GetStringSet(_ context.Context, key string) []string {
	if e, ok := m.get(key); ok {
		return decodeSet(key, e.value)
	}
	return nil
}

func (m *Memory) PutString(_ context.Context, key, value string) error {
	return m.put(key, kindString, value)
}

func (m *Memory) PutInt(_ context.Context, key string, value int) error {
	return m.put(key, kindInt, strconv.Itoa(value))
}

func (m *Memory) PutBool(_ context.Context, key string, value bool) error {
	return m.put(key, kindBool, strconv.FormatBool(value))
}

func (m *Memory) PutStringSet(_ context.Context, key string, values []string) error {
	return m.put(key, kindSet, encodeSet(values))
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Contains(_ context.Context, key string) bool {
	_, ok := m.get(key)
	return ok
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) getRaw(_ context.Context, key string) (string, string, bool) {
	e, ok := m.get(key)
	return e.kind, e.value, ok
}

func (m *Memory) putRaw(_ context.Context, key, kind, value string) error {
	return m.put(key, kind, value)
}
