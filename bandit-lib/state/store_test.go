package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixband/bandit/bandit-lib/catalog"
)

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "saved_paths.json")
}

func TestLoad_MissingFile(t *testing.T) {
	s := Load(storePath(t), catalog.Linux)

	assert.Equal(t, 0, s.Count())
	_, ok := s.Get(catalog.Linux, "anything")
	assert.False(t, ok)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Load(path, catalog.Linux)

	assert.Equal(t, 0, s.Count(), "corrupt store resets to empty")
}

func TestLoad_LegacyFlatSchemaMigrates(t *testing.T) {
	path := storePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"abc123": "/games/x"}`), 0o644))

	s := Load(path, catalog.Linux)

	root, ok := s.Get(catalog.Linux, "abc123")
	require.True(t, ok)
	assert.Equal(t, "/games/x", root)

	// Migration is persisted immediately in the per-platform schema.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, map[string]string{"abc123": "/games/x"}, onDisk["Linux"])
	assert.Empty(t, onDisk["Windows"])
	assert.Empty(t, onDisk["Darwin"])
}

func TestSetGetRemove_PersistenceRoundTrip(t *testing.T) {
	path := storePath(t)

	s := Load(path, catalog.Windows)
	require.NoError(t, s.Set(catalog.Windows, "sims4", "/games"))

	// A fresh load sees the same mapping.
	reloaded := Load(path, catalog.Windows)
	root, ok := reloaded.Get(catalog.Windows, "sims4")
	require.True(t, ok)
	assert.Equal(t, "/games", root)

	require.NoError(t, reloaded.Remove(catalog.Windows, "sims4"))

	again := Load(path, catalog.Windows)
	_, ok = again.Get(catalog.Windows, "sims4")
	assert.False(t, ok)
}

func TestSet_AtMostOneRootPerKey(t *testing.T) {
	s := Load(storePath(t), catalog.Linux)

	require.NoError(t, s.Set(catalog.Linux, "openttd", "/a"))
	require.NoError(t, s.Set(catalog.Linux, "openttd", "/b"))

	root, ok := s.Get(catalog.Linux, "openttd")
	require.True(t, ok)
	assert.Equal(t, "/b", root)
	assert.Equal(t, 1, s.Count())
}

func TestInstallRoot_CompatLayerLookup(t *testing.T) {
	s := Load(storePath(t), catalog.Linux)
	require.NoError(t, s.Set(catalog.Windows, "sims4", "/games/win"))

	// Linux consults the Windows key through the compatibility layer.
	root, foundUnder, ok := s.InstallRoot(catalog.Linux, "sims4")
	require.True(t, ok)
	assert.Equal(t, "/games/win", root)
	assert.Equal(t, catalog.Windows, foundUnder)

	// Darwin has no compatibility layer; only the native key counts.
	_, _, ok = s.InstallRoot(catalog.Darwin, "sims4")
	assert.False(t, ok)

	// Native key wins over the foreign one.
	require.NoError(t, s.Set(catalog.Linux, "sims4", "/games/linux"))
	root, foundUnder, ok = s.InstallRoot(catalog.Linux, "sims4")
	require.True(t, ok)
	assert.Equal(t, "/games/linux", root)
	assert.Equal(t, catalog.Linux, foundUnder)
}

func TestInstalled(t *testing.T) {
	s := Load(storePath(t), catalog.Linux)

	assert.False(t, s.Installed(catalog.Linux, "openttd"))
	require.NoError(t, s.Set(catalog.Linux, "openttd", "/games"))
	assert.True(t, s.Installed(catalog.Linux, "openttd"))
}

func TestLoad_UnknownPlatformSectionIgnored(t *testing.T) {
	path := storePath(t)
	content := `{"Linux": {"a": "/x"}, "Amiga": {"b": "/y"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := Load(path, catalog.Linux)

	_, ok := s.Get(catalog.Linux, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Count())
}

func TestSave_ConcurrentMutationsAllPersisted(t *testing.T) {
	path := storePath(t)
	s := Load(path, catalog.Linux)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Set(catalog.Linux, fmt.Sprintf("game-%02d", n), "/games"))
		}(i)
	}
	wg.Wait()

	// The last save to finish must reflect every mutation.
	reloaded := Load(path, catalog.Linux)
	assert.Equal(t, 16, reloaded.Count())
}

func TestSave_NoPartialWritesOnDisk(t *testing.T) {
	path := storePath(t)
	s := Load(path, catalog.Linux)
	require.NoError(t, s.Set(catalog.Linux, "a", "/x"))

	// The only json file present is the fully written store, no temp debris.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "saved_paths.json", entries[0].Name())
}
