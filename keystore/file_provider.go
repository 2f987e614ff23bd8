package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/open-source-cooperative/android-native-keyring-store/internal/mem"
)

const (
	filePermissions os.FileMode = 0600
	dirPermissions  os.FileMode = 0700

	saltFile = "keystore.salt"
	keysDir  = "keys"
	keyExt   = ".key"

	saltSize = 32

	// argon2id parameters for deriving the key-wrapping key
	argonTime    uint32 = 4
	argonMemory  uint32 = 128 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
)

// FileOptions configures a FileProvider.
type FileOptions struct {
	// Path is the keystore directory. Created with 0700 if absent.
	Path string `yaml:"path" json:"path"`

	// Passphrase protects the key material at rest. Never serialized.
	Passphrase string `yaml:"-" json:"-"`

	// EnvPassphraseVar names an environment variable to read the
	// passphrase from when Passphrase is empty. The variable is cleared
	// after it is read.
	EnvPassphraseVar string `yaml:"env_passphrase_var,omitempty" json:"env_passphrase_var,omitempty"`
}

// FileProvider is the production Provider: generated keys are wrapped with a
// passphrase-derived key (argon2id + ChaCha20-Poly1305) and persisted one
// file per alias under the keystore directory. Unwrapped material only ever
// lives inside memguard enclaves.
type FileProvider struct {
	path    string
	keysDir string
	wrapKey *memguard.Enclave // argon2id-derived key-wrapping key
}

// NewFileProvider opens or initializes a keystore directory. The derivation
// salt is created on first use and must survive with the directory: without
// it the wrapped keys cannot be recovered.
func NewFileProvider(opts FileOptions) (*FileProvider, error) {
	if opts.Path == "" {
		return nil, errors.New("keystore path is required")
	}

	passphrase, err := resolvePassphrase(opts)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(passphrase)

	if err = os.MkdirAll(filepath.Join(opts.Path, keysDir), dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	// Best effort: failure to lock pages is not fatal, enclaves still
	// protect the key material itself.
	if _, err = mem.Protect(); err != nil {
		fmt.Printf("WARNING: cannot fully protect memory: %v\n", err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(opts.Path, saltFile))
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(salt)

	wrapKey := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	enclave := memguard.NewEnclave(wrapKey)

	return &FileProvider{
		path:    opts.Path,
		keysDir: filepath.Join(opts.Path, keysDir),
		wrapKey: enclave,
	}, nil
}

func resolvePassphrase(opts FileOptions) ([]byte, error) {
	var passphrase []byte
	switch {
	case opts.Passphrase != "":
		passphrase = []byte(opts.Passphrase)
	case opts.EnvPassphraseVar != "":
		envPass := os.Getenv(opts.EnvPassphraseVar)
		if envPass == "" {
			return nil, fmt.Errorf("environment variable %s is empty or not set", opts.EnvPassphraseVar)
		}
		passphrase = []byte(envPass)
		os.Unsetenv(opts.EnvPassphraseVar)
	default:
		return nil, errors.New("either Passphrase or EnvPassphraseVar must be provided")
	}

	if len(passphrase) < 12 {
		memguard.WipeBytes(passphrase)
		return nil, errors.New("passphrase must be at least 12 characters long")
	}
	return passphrase, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != saltSize {
			return nil, fmt.Errorf("keystore salt is %d bytes, expected %d", len(data), saltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read keystore salt: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err = writeSecureFile(path, salt, filePermissions); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

func (p *FileProvider) keyPath(alias string) (string, error) {
	if err := validateAlias(alias); err != nil {
		return "", err
	}
	return filepath.Join(p.keysDir, alias+keyExt), nil
}

// ContainsAlias reports whether a wrapped key file exists for alias.
func (p *FileProvider) ContainsAlias(alias string) (bool, error) {
	path, err := p.keyPath(alias)
	if err != nil {
		return false, err
	}
	if _, err = os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat key file for alias %s: %w", alias, err)
	}
	return true, nil
}

// GetKey unwraps and returns the key registered under alias.
func (p *FileProvider) GetKey(alias string) (Key, error) {
	path, err := p.keyPath(alias)
	if err != nil {
		return nil, err
	}
	wrapped, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no key registered under alias %s", alias)
		}
		return nil, fmt.Errorf("failed to read key file for alias %s: %w", alias, err)
	}

	raw, err := p.unwrap(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key for alias %s: %w", alias, err)
	}
	return newEnclaveKey(alias, raw), nil
}

// GenerateKey creates a fresh AES-256 key under alias, replacing any
// existing registration. The caller is expected to hold the provisioning
// lock; generation itself does not re-check existence.
func (p *FileProvider) GenerateKey(alias string, spec KeySpec) (Key, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	path, err := p.keyPath(alias)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, KeyLen)
	if _, err = rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if isWeakKey(raw) {
		memguard.WipeBytes(raw)
		return nil, errors.New("generated key failed entropy check")
	}

	wrapped, err := p.wrap(raw)
	if err != nil {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("failed to wrap key for alias %s: %w", alias, err)
	}
	if err = writeSecureFile(path, wrapped, filePermissions); err != nil {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("failed to persist key for alias %s: %w", alias, err)
	}

	return newEnclaveKey(alias, raw), nil
}

// Close drops the wrapping key. Outstanding Key handles stay usable; new
// GetKey/GenerateKey calls will fail.
func (p *FileProvider) Close() error {
	p.wrapKey = nil
	return nil
}

// wrap seals raw key material under the wrapping key: nonce ++ ciphertext.
func (p *FileProvider) wrap(raw []byte) ([]byte, error) {
	wrapBuf, err := p.openWrapKey()
	if err != nil {
		return nil, err
	}
	defer wrapBuf.Destroy()

	aead, err := chacha20poly1305.New(wrapBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create wrapping cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, raw, nil)...), nil
}

func (p *FileProvider) unwrap(wrapped []byte) ([]byte, error) {
	wrapBuf, err := p.openWrapKey()
	if err != nil {
		return nil, err
	}
	defer wrapBuf.Destroy()

	aead, err := chacha20poly1305.New(wrapBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create wrapping cipher: %w", err)
	}
	if len(wrapped) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("wrapped key data too short")
	}
	raw, err := aead.Open(nil, wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():], nil)
	if err != nil {
		return nil, errors.New("authentication failed (wrong passphrase or corrupted key file)")
	}
	return raw, nil
}

func (p *FileProvider) openWrapKey() (*memguard.LockedBuffer, error) {
	if p.wrapKey == nil {
		return nil, errors.New("keystore is closed")
	}
	buf, err := p.wrapKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open wrapping key enclave: %w", err)
	}
	return buf, nil
}

// validateAlias guards against path traversal: aliases become file names.
func validateAlias(alias string) error {
	if alias == "" {
		return errors.New("key alias cannot be empty")
	}
	if len(alias) > 100 {
		return fmt.Errorf("key alias too long (max 100 characters): %s", alias)
	}
	if strings.Contains(alias, "..") ||
		strings.ContainsAny(alias, "/\\ ") {
		return fmt.Errorf("key alias contains invalid characters: %s", alias)
	}
	return nil
}

// isWeakKey rejects key material that clearly did not come from a healthy
// random source.
func isWeakKey(key []byte) bool {
	if len(key) < KeyLen {
		return true
	}
	unique := make(map[byte]bool, len(key))
	for _, b := range key {
		unique[b] = true
	}
	return len(unique) < 16
}

// writeSecureFile writes data atomically: temp file, sync, chmod, rename.
func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
