// Package keyringstore is a credential vault: secrets keyed by (service,
// user), encrypted with AES-256-GCM under per-service keys, persisted as
// self-describing envelopes in a per-service namespace store.
//
// The store composes three swappable facilities: a keystore.Provider that
// owns the encryption keys, a keystore.Cipher that seals and opens secrets,
// and a prefs.Store that persists the envelopes. Production backends are the
// passphrase-protected file keystore and the filesystem or S3 namespace
// stores; in-memory fakes of both exist for tests.
//
// Secrets never touch storage in the clear, key bytes never leave the
// keystore package, and no plaintext or key material is ever written to the
// audit log.
package keyringstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/open-source-cooperative/android-native-keyring-store/audit"
	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
	"github.com/open-source-cooperative/android-native-keyring-store/prefs"
)

const vendorString = "Envelope-encrypted keyring store (file/S3 backends), " +
	"https://github.com/open-source-cooperative/android-native-keyring-store"

// Store builds Credential handles over a shared set of backends. A Store is
// safe for concurrent use; all Credentials built from it share its backends.
type Store struct {
	keys       keystore.Provider
	cipher     keystore.Cipher
	prefs      prefs.Store
	audit      audit.Logger
	instanceID string
}

// New builds a Store with production backends from configuration: a
// file-backed keystore, the configured storage backend and the configured
// audit sink.
func New(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := keystore.NewFileProvider(config.Keystore)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	store, err := prefs.NewStore(config.Storage)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to open storage backend: %w", err)
	}

	auditLogger, err := audit.NewLogger(&config.Audit)
	if err != nil {
		_ = store.Close()
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	vault, err := NewWithBackends(provider, store, auditLogger)
	if err != nil {
		_ = auditLogger.Close()
		_ = store.Close()
		_ = provider.Close()
		return nil, err
	}
	return vault, nil
}

// NewWithBackends builds a Store over explicit backends. The storage backend
// is pinged before the store is returned. A nil audit logger disables
// auditing.
func NewWithBackends(provider keystore.Provider, store prefs.Store, auditLogger audit.Logger) (*Store, error) {
	if provider == nil {
		return nil, errors.New("key provider cannot be nil")
	}
	if store == nil {
		return nil, errors.New("storage backend cannot be nil")
	}
	if err := store.Ping(); err != nil {
		return nil, fmt.Errorf("storage backend is not accessible: %w", err)
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	return &Store{
		keys:       provider,
		cipher:     keystore.NewGCM(),
		prefs:      store,
		audit:      auditLogger,
		instanceID: uuid.NewString(),
	}, nil
}

// Build returns a Credential bound to (service, user). This store accepts no
// per-credential configuration: a non-empty modifiers map is a usage error.
// Build has no side effects; the service key is provisioned lazily by the
// first credential operation.
func (s *Store) Build(service, user string, modifiers map[string]string) (*Credential, error) {
	if len(modifiers) > 0 {
		return nil, &NotSupportedError{Message: "credential modifiers are not accepted"}
	}
	return &Credential{service: service, user: user, store: s}, nil
}

// Vendor describes this store implementation.
func (s *Store) Vendor() string {
	return vendorString
}

// ID returns the unique identifier of this store instance.
func (s *Store) ID() string {
	return s.instanceID
}

// Audit returns the store's audit logger, e.g. for querying logged events.
func (s *Store) Audit() audit.Logger {
	return s.audit
}

// Close releases the store's backends. Credentials built from this store
// must not be used afterwards.
func (s *Store) Close() error {
	return errors.Join(
		s.audit.Close(),
		s.prefs.Close(),
		s.keys.Close(),
	)
}

func (s *Store) auditLog(action string, success bool, metadata map[string]interface{}) {
	if err := s.audit.Log(action, success, metadata); err != nil {
		fmt.Printf("WARNING: failed to write audit event %s: %v\n", action, err)
	}
}

func (s *Store) auditFailure(action, requestID string, c *Credential, start time.Time, err error) {
	s.auditLog(action+"_FAILED", false, c.auditMeta(requestID, map[string]interface{}{
		"failure_reason": err.Error(),
		"duration_ms":    time.Since(start).Milliseconds(),
	}))
}
