package prefs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	filePermissions os.FileMode = 0600
	dirPermissions  os.FileMode = 0700

	prefsExt = ".prefs"
)

// FileStore implements Store on the local filesystem: one JSON document per
// namespace under a base directory, values base64-encoded, writes atomic via
// temp-file-and-rename.
type FileStore struct {
	basePath string
	mu       sync.Mutex // serializes commits (last-commit-wins)
}

// NewFileStore initializes a filesystem store rooted at basePath, creating
// the directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required for filesystem store")
	}
	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", basePath, err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (fs *FileStore) namespacePath(namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, namespace+prefsExt), nil
}

// loadDocument reads a namespace document; an absent file is an empty
// document, not an error.
func (fs *FileStore) loadDocument(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read namespace file %s: %w", path, err)
	}

	doc := map[string]string{}
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse namespace file %s: %w", path, err)
	}
	return doc, nil
}

func (fs *FileStore) Get(namespace, key string) ([]byte, bool, error) {
	path, err := fs.namespacePath(namespace)
	if err != nil {
		return nil, false, err
	}
	doc, err := fs.loadDocument(path)
	if err != nil {
		return nil, false, err
	}
	encoded, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// An unreadable value is treated as absent, matching the text
		// store contract: only valid encodings exist.
		fmt.Printf("WARNING: bad base64 on key %q in namespace %q, ignoring\n", key, namespace)
		return nil, false, nil
	}
	return value, true, nil
}

func (fs *FileStore) Edit(namespace string) (Editor, error) {
	path, err := fs.namespacePath(namespace)
	if err != nil {
		return nil, err
	}
	return &fileEditor{store: fs, path: path}, nil
}

func (fs *FileStore) Ping() error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("store directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store path %s is not a directory", fs.basePath)
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) GetType() string {
	return string(StoreTypeFileSystem)
}

type fileEditor struct {
	store *FileStore
	path  string
	ops   []op
}

func (e *fileEditor) Put(key string, value []byte) Editor {
	staged := make([]byte, len(value))
	copy(staged, value)
	e.ops = append(e.ops, op{key: key, value: staged})
	return e
}

func (e *fileEditor) Remove(key string) Editor {
	e.ops = append(e.ops, op{key: key})
	return e
}

// Commit applies the staged changes under the store lock and rewrites the
// namespace document atomically.
func (e *fileEditor) Commit() error {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	doc, err := e.store.loadDocument(e.path)
	if err != nil {
		return err
	}
	applyOps(doc, e.ops, base64.StdEncoding.EncodeToString)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize namespace document: %w", err)
	}
	if err = writeAtomicFile(e.path, data, filePermissions); err != nil {
		return fmt.Errorf("failed to commit namespace document: %w", err)
	}
	return nil
}

// validateNamespace guards against path traversal: namespaces become file
// names (and S3 object keys).
func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if len(namespace) > 100 {
		return fmt.Errorf("namespace too long (max 100 characters)")
	}
	if strings.Contains(namespace, "..") ||
		strings.ContainsAny(namespace, "/\\ ") {
		return fmt.Errorf("namespace contains invalid characters")
	}
	return nil
}

func writeAtomicFile(path string, data []byte, perm os.FileMode) error {
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
