// Package prefs provides the per-service key-value namespace store that the
// credential store persists ciphertext envelopes into.
//
// A namespace is a named partition holding string keys and binary values.
// Values are carried through a base64 text encoding because the store's
// native value type is text; the encoding is invisible to callers — Get
// returns exactly the bytes that were Put.
//
// Writes go through an Editor: stage Put/Remove calls, then Commit applies
// them atomically. Concurrent commits against the same store are serialized
// so the persisted document is always exactly one editor's result, never an
// interleaving.
package prefs

import (
	"fmt"
)

// Store is a collection of namespaces.
type Store interface {
	// Get returns the value stored under key in namespace. The second
	// return is false when no entry exists.
	Get(namespace, key string) ([]byte, bool, error)

	// Edit opens a staged batch of changes against namespace.
	Edit(namespace string) (Editor, error)

	// Ping tests connectivity for remote backends.
	Ping() error

	// Close closes the store and releases any resources it holds.
	Close() error

	// GetType returns the backend type ("filesystem", "s3", "memory").
	GetType() string
}

// Editor stages changes to a single namespace. Put and Remove return the
// editor for chaining; nothing is visible to readers until Commit returns.
// Removing an absent key is not an error.
type Editor interface {
	Put(key string, value []byte) Editor
	Remove(key string) Editor
	Commit() error
}

// StoreType identifies a storage backend.
type StoreType string

const (
	StoreTypeFileSystem StoreType = "filesystem"
	StoreTypeS3         StoreType = "s3"
	StoreTypeMemory     StoreType = "memory"
)

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Type must be one of the StoreType constants.
	Type StoreType `yaml:"type" json:"type"`

	// Config holds backend-specific settings, e.g. "base_path" for the
	// filesystem backend or "endpoint"/"bucket" for S3.
	Config map[string]interface{} `yaml:"config" json:"config"`
}

// NewStore is the factory for storage backends.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeFileSystem:
		basePath, ok := config.Config["base_path"].(string)
		if !ok {
			return nil, fmt.Errorf("filesystem storage requires 'base_path' in config")
		}
		return NewFileStore(basePath)

	case StoreTypeS3:
		return NewS3StoreFromConfig(config)

	case StoreTypeMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// op is one staged change; a nil value means removal.
type op struct {
	key   string
	value []byte
}

// applyOps folds staged changes into a namespace document of base64 values.
func applyOps(doc map[string]string, ops []op, encode func([]byte) string) {
	for _, o := range ops {
		if o.value == nil {
			delete(doc, o.key)
		} else {
			doc[o.key] = encode(o.value)
		}
	}
}
