package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]json.RawMessage
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryStore) doc(namespace string) map[string]json.RawMessage {
	doc, ok := m.docs[namespace]
	if !ok {
		doc = make(map[string]json.RawMessage)
		m.docs[namespace] = doc
	}
	return doc
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.doc(namespace)[key]
	if !ok {
		return false, nil
	}
	if dst == nil {
		return true, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *MemoryStore) Put(ctx context.Context, namespace, key string, value any) error {
	return m.Update(ctx, namespace, key, func(json.RawMessage) (any, error) { return value, nil })
}

func (m *MemoryStore) Update(ctx context.Context, namespace, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := applyUpdate(m.doc(namespace), key, fn)
	return err
}

func (m *MemoryStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.doc(namespace)
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
