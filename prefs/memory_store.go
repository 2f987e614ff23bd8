package prefs

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// MemoryStore implements Store in process memory. Values still round-trip
// through base64 so the text-encoding contract is exercised the same way as
// in the persistent backends.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]string
	closed     bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]string)}
}

func (ms *MemoryStore) Get(namespace, key string) ([]byte, bool, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, false, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return nil, false, fmt.Errorf("store is closed")
	}
	doc, ok := ms.namespaces[namespace]
	if !ok {
		return nil, false, nil
	}
	encoded, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, nil
	}
	return value, true, nil
}

func (ms *MemoryStore) Edit(namespace string) (Editor, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	return &memoryEditor{store: ms, namespace: namespace}, nil
}

func (ms *MemoryStore) Ping() error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	ms.closed = true
	ms.namespaces = make(map[string]map[string]string)
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) GetType() string {
	return string(StoreTypeMemory)
}

type memoryEditor struct {
	store     *MemoryStore
	namespace string
	ops       []op
}

func (e *memoryEditor) Put(key string, value []byte) Editor {
	staged := make([]byte, len(value))
	copy(staged, value)
	e.ops = append(e.ops, op{key: key, value: staged})
	return e
}

func (e *memoryEditor) Remove(key string) Editor {
	e.ops = append(e.ops, op{key: key})
	return e
}

func (e *memoryEditor) Commit() error {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	if e.store.closed {
		return fmt.Errorf("store is closed")
	}
	doc, ok := e.store.namespaces[e.namespace]
	if !ok {
		doc = make(map[string]string)
		e.store.namespaces[e.namespace] = doc
	}
	applyOps(doc, e.ops, base64.StdEncoding.EncodeToString)
	return nil
}
