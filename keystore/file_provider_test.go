package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "test-passphrase-long-enough"

func newTestFileProvider(t *testing.T, path string) *FileProvider {
	t.Helper()
	provider, err := NewFileProvider(FileOptions{Path: path, Passphrase: testPassphrase})
	require.NoError(t, err)
	return provider
}

func TestFileProviderLifecycle(t *testing.T) {
	provider := newTestFileProvider(t, t.TempDir())
	defer provider.Close()

	exists, err := provider.ContainsAlias("svc")
	require.NoError(t, err)
	assert.False(t, exists)

	generated, err := provider.GenerateKey("svc", AESGCMSpec())
	require.NoError(t, err)
	assert.Equal(t, "svc", generated.Alias())

	exists, err = provider.ContainsAlias("svc")
	require.NoError(t, err)
	assert.True(t, exists)

	fetched, err := provider.GetKey("svc")
	require.NoError(t, err)

	// Same key both times: what one handle encrypts the other decrypts.
	gcm := NewGCM()
	iv, ciphertext, err := gcm.Encrypt(generated, []byte("continuity"))
	require.NoError(t, err)
	plaintext, err := gcm.Decrypt(fetched, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("continuity"), plaintext)
}

func TestFileProviderPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	first := newTestFileProvider(t, dir)
	key, err := first.GenerateKey("svc", AESGCMSpec())
	require.NoError(t, err)

	gcm := NewGCM()
	iv, ciphertext, err := gcm.Encrypt(key, []byte("survives restart"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestFileProvider(t, dir)
	defer second.Close()

	exists, err := second.ContainsAlias("svc")
	require.NoError(t, err)
	require.True(t, exists)

	reloaded, err := second.GetKey("svc")
	require.NoError(t, err)
	plaintext, err := gcm.Decrypt(reloaded, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("survives restart"), plaintext)
}

func TestFileProviderWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	first := newTestFileProvider(t, dir)
	_, err := first.GenerateKey("svc", AESGCMSpec())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewFileProvider(FileOptions{Path: dir, Passphrase: "a-different-passphrase"})
	require.NoError(t, err)
	defer second.Close()

	_, err = second.GetKey("svc")
	assert.Error(t, err, "wrapped key must not unwrap under the wrong passphrase")
}

func TestFileProviderPassphraseFromEnv(t *testing.T) {
	const envVar = "KEYRINGSTORE_TEST_PASSPHRASE"
	t.Setenv(envVar, testPassphrase)

	provider, err := NewFileProvider(FileOptions{Path: t.TempDir(), EnvPassphraseVar: envVar})
	require.NoError(t, err)
	defer provider.Close()

	assert.Empty(t, os.Getenv(envVar), "passphrase variable must be cleared after reading")
}

func TestFileProviderPassphraseValidation(t *testing.T) {
	_, err := NewFileProvider(FileOptions{Path: t.TempDir()})
	assert.Error(t, err, "a passphrase source is required")

	_, err = NewFileProvider(FileOptions{Path: t.TempDir(), Passphrase: "short"})
	assert.Error(t, err, "short passphrases are rejected")
}

func TestFileProviderAliasValidation(t *testing.T) {
	provider := newTestFileProvider(t, t.TempDir())
	defer provider.Close()

	for _, alias := range []string{"", "has space", "dot../dot", "slash/alias", "back\\slash"} {
		_, err := provider.GenerateKey(alias, AESGCMSpec())
		assert.Error(t, err, "alias %q must be rejected", alias)
	}
}

func TestFileProviderKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	provider := newTestFileProvider(t, dir)
	defer provider.Close()

	_, err := provider.GenerateKey("svc", AESGCMSpec())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "keys", "svc.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileProviderClosedProvider(t *testing.T) {
	provider := newTestFileProvider(t, t.TempDir())
	_, err := provider.GenerateKey("svc", AESGCMSpec())
	require.NoError(t, err)
	require.NoError(t, provider.Close())

	_, err = provider.GetKey("svc")
	assert.Error(t, err)
}
