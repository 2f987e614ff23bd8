package prefs

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	testStoreContract(t, store)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	testStoreContract(t, store)
}

// testStoreContract exercises the behavior every backend must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()

	// Absent namespace and absent key both read as not-found.
	_, ok, err := store.Get("ns", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Byte-exact round-trip, including bytes that are not valid text.
	value := []byte{0x00, 0x01, 0xFE, 0xFF, '{', '"'}
	editor, err := store.Edit("ns")
	require.NoError(t, err)
	require.NoError(t, editor.Put("binary", value).Commit())

	got, ok, err := store.Get("ns", "binary")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)

	// Staged changes apply together, and removal wins over an earlier put
	// in the same batch.
	editor, err = store.Edit("ns")
	require.NoError(t, err)
	err = editor.
		Put("a", []byte("1")).
		Put("b", []byte("2")).
		Put("c", []byte("3")).
		Remove("c").
		Commit()
	require.NoError(t, err)

	for key, want := range map[string][]byte{"a": []byte("1"), "b": []byte("2")} {
		got, ok, err = store.Get("ns", key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok, err = store.Get("ns", "c")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent key succeeds.
	editor, err = store.Edit("ns")
	require.NoError(t, err)
	require.NoError(t, editor.Remove("never-existed").Commit())

	// Namespaces are isolated.
	editor, err = store.Edit("other")
	require.NoError(t, err)
	require.NoError(t, editor.Put("binary", []byte("different")).Commit())
	got, ok, err = store.Get("ns", "binary")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)

	require.NoError(t, store.Ping())
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	editor, err := first.Edit("svc")
	require.NoError(t, err)
	require.NoError(t, editor.Put("alice", []byte("envelope-bytes")).Commit())
	require.NoError(t, first.Close())

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	defer second.Close()

	got, ok, err := second.Get("svc", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("envelope-bytes"), got)
}

func TestFileStoreNamespaceFilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	editor, err := store.Edit("svc")
	require.NoError(t, err)
	require.NoError(t, editor.Put("alice", []byte("x")).Commit())

	info, err := os.Stat(filepath.Join(dir, "svc.prefs"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestValidateNamespace(t *testing.T) {
	for _, namespace := range []string{"", "has space", "../escape", "a/b", "a\\b"} {
		assert.Error(t, validateNamespace(namespace), "namespace %q must be rejected", namespace)
	}
	assert.NoError(t, validateNamespace("com.example.app"))
}

func TestFileStoreConcurrentCommits(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			editor, err := store.Edit("hot")
			if err != nil {
				t.Error(err)
				return
			}
			if err := editor.Put("key", []byte("value")).Commit(); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, ok, err := store.Get("hot", "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]interface{}{"base_path": t.TempDir()},
	})
	require.NoError(t, err)
	assert.Equal(t, string(StoreTypeFileSystem), store.GetType())
	require.NoError(t, store.Close())

	store, err = NewStore(StoreConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	assert.Equal(t, string(StoreTypeMemory), store.GetType())
	require.NoError(t, store.Close())

	_, err = NewStore(StoreConfig{Type: StoreTypeFileSystem})
	assert.Error(t, err, "filesystem store requires base_path")

	_, err = NewStore(StoreConfig{Type: "bogus"})
	assert.Error(t, err)
}
