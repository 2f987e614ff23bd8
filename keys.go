package keyringstore

import (
	"sync"

	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
)

// provisionMu serializes the check-then-generate window against the key
// provider. It is process-wide across all services and all Store instances:
// two stores over the same provider backend must not race a generation.
// Cipher work never runs under this lock.
var provisionMu sync.Mutex

// obtainKey returns the encryption key for service, generating it on first
// use. Keys are never cached here; every operation fetches a fresh handle so
// the provider remains the single source of truth.
func (s *Store) obtainKey(service string) (keystore.Key, error) {
	provisionMu.Lock()
	defer provisionMu.Unlock()

	exists, err := s.keys.ContainsAlias(service)
	if err != nil {
		return nil, &PlatformError{Cause: err}
	}
	if exists {
		key, err := s.keys.GetKey(service)
		if err != nil {
			return nil, &PlatformError{Cause: err}
		}
		return key, nil
	}

	key, err := s.keys.GenerateKey(service, keystore.AESGCMSpec())
	if err != nil {
		return nil, &PlatformError{Cause: err}
	}
	return key, nil
}
