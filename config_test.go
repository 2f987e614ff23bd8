package keyringstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-source-cooperative/android-native-keyring-store/audit"
	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
	"github.com/open-source-cooperative/android-native-keyring-store/prefs"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configYAML := fmt.Sprintf(`
keystore:
  path: %s/keystore
  env_passphrase_var: KEYRING_PASSPHRASE
storage:
  type: filesystem
  config:
    base_path: %s/store
audit:
  enabled: true
  type: file
  options:
    file_path: %s/audit.jsonl
`, dir, dir, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dir+"/keystore", config.Keystore.Path)
	assert.Equal(t, "KEYRING_PASSPHRASE", config.Keystore.EnvPassphraseVar)
	assert.Equal(t, prefs.StoreTypeFileSystem, config.Storage.Type)
	assert.Equal(t, dir+"/store", config.Storage.Config["base_path"])
	assert.True(t, config.Audit.Enabled)
	assert.Equal(t, audit.FileAuditType, config.Audit.Type)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Keystore: keystore.FileOptions{Path: "/tmp/ks", Passphrase: "long-enough-pass"},
		Storage:  prefs.StoreConfig{Type: prefs.StoreTypeMemory},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing keystore path", func(c *Config) { c.Keystore.Path = "" }},
		{"missing passphrase source", func(c *Config) { c.Keystore.Passphrase = "" }},
		{"missing storage type", func(c *Config) { c.Storage.Type = "" }},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "bogus" }},
		{"unknown audit type", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Type = "bogus"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestNewFromConfigEndToEnd(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.jsonl")

	store, err := New(Config{
		Keystore: keystore.FileOptions{
			Path:       filepath.Join(dir, "keystore"),
			Passphrase: "a-test-passphrase",
		},
		Storage: prefs.StoreConfig{
			Type:   prefs.StoreTypeFileSystem,
			Config: map[string]interface{}{"base_path": filepath.Join(dir, "store")},
		},
		Audit: audit.Config{
			Enabled: true,
			Type:    audit.FileAuditType,
			Options: map[string]interface{}{"file_path": auditPath},
		},
	})
	require.NoError(t, err)
	defer store.Close()

	cred, err := store.Build("com.example.app", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, cred.SetSecret([]byte("wired end to end")))

	got, err := cred.GetSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("wired end to end"), got)

	// Operations leave an audit trail.
	result, err := store.Audit().Query(audit.QueryOptions{Action: "SET_SECRET_COMPLETED"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Events)

	// And nothing in the trail carries the secret.
	raw, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "wired end to end")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
