package keystore

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// MemoryProvider keeps generated keys in memguard enclaves with no
// persistence. It exists so the envelope and lifecycle logic can be exercised
// without a real keystore directory; keys vanish when the provider does.
type MemoryProvider struct {
	mu   sync.RWMutex
	keys map[string]*memguard.Enclave
}

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{keys: make(map[string]*memguard.Enclave)}
}

func (p *MemoryProvider) ContainsAlias(alias string) (bool, error) {
	if err := validateAlias(alias); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.keys[alias]
	return ok, nil
}

func (p *MemoryProvider) GetKey(alias string) (Key, error) {
	if err := validateAlias(alias); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	enclave, ok := p.keys[alias]
	if !ok {
		return nil, fmt.Errorf("no key registered under alias %s", alias)
	}
	return &enclaveKey{alias: alias, enclave: enclave}, nil
}

func (p *MemoryProvider) GenerateKey(alias string, spec KeySpec) (Key, error) {
	if err := validateAlias(alias); err != nil {
		return nil, err
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	raw := make([]byte, KeyLen)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	key := newEnclaveKey(alias, raw)

	p.mu.Lock()
	p.keys[alias] = key.enclave
	p.mu.Unlock()

	return key, nil
}

func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	p.keys = make(map[string]*memguard.Enclave)
	p.mu.Unlock()
	return nil
}
