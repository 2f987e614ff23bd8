package keyringstore

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/open-source-cooperative/android-native-keyring-store/audit"
	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
	"github.com/open-source-cooperative/android-native-keyring-store/prefs"
)

// Config assembles the production backends. Example YAML:
//
//	keystore:
//	  path: /var/lib/keyring/keystore
//	  env_passphrase_var: KEYRING_PASSPHRASE
//	storage:
//	  type: filesystem
//	  config:
//	    base_path: /var/lib/keyring/store
//	audit:
//	  enabled: true
//	  type: file
//	  options:
//	    file_path: /var/log/keyring/audit.jsonl
//
// The keystore passphrase is never read from the file; supply it in code or
// through the named environment variable.
type Config struct {
	Keystore keystore.FileOptions `yaml:"keystore"`
	Storage  prefs.StoreConfig    `yaml:"storage"`
	Audit    audit.Config         `yaml:"audit"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate checks the configuration for structural problems before any
// backend is opened. Backend constructors perform their own deeper checks.
func (c *Config) Validate() error {
	if c.Keystore.Path == "" {
		return errors.New("keystore path is required")
	}
	if c.Keystore.Passphrase == "" && c.Keystore.EnvPassphraseVar == "" {
		return errors.New("keystore requires a passphrase or an environment variable to read it from")
	}

	switch c.Storage.Type {
	case prefs.StoreTypeFileSystem, prefs.StoreTypeS3, prefs.StoreTypeMemory:
	case "":
		return errors.New("storage type is required")
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Audit.Enabled {
		switch c.Audit.Type {
		case audit.FileAuditType, audit.SyslogAuditType, audit.NoOp:
		default:
			return fmt.Errorf("unknown audit type: %s", c.Audit.Type)
		}
	}
	return nil
}
