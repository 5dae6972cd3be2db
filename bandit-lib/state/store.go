// Package state persists the per-platform mapping of game id to install
// directory. The on-disk form is a JSON object keyed by platform name:
//
//	{"Windows": {"sims4": "/games"}, "Linux": {}, "Darwin": {}}
//
// An older flat schema ({"sims4": "/games"}) is migrated on load.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixband/bandit/bandit-lib/catalog"
	"github.com/felixband/bandit/bandit-lib/logging"
)

// Store is the install-state store. The persisted file is the source of
// truth; the in-memory map is a cache re-synced to disk after every
// mutation. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	saveMu    sync.Mutex // serializes marshal+rename so saves land in mutation order
	path      string
	platforms map[catalog.Platform]map[string]string
}

// Load reads the store from path. A missing file yields an empty store. A
// corrupt file is logged and replaced with an empty store rather than
// blocking startup. A legacy flat schema is migrated to the current
// per-platform schema, assigning every legacy entry to currentPlatform, and
// the migrated form is persisted immediately.
func Load(path string, currentPlatform catalog.Platform) *Store {
	s := &Store{
		path:      path,
		platforms: emptyPlatforms(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		logging.Warn("failed to read install state, starting empty", "path", path, "error", err)
		return s
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Warn("install state is corrupt, starting empty", "path", path, "error", err)
		return s
	}

	if isLegacySchema(raw) {
		var flat map[string]string
		if err := json.Unmarshal(data, &flat); err != nil {
			logging.Warn("legacy install state is corrupt, starting empty", "path", path, "error", err)
			return s
		}
		for gameID, root := range flat {
			s.platforms[currentPlatform][gameID] = root
		}
		logging.Info("migrated legacy install state", "entries", len(flat), "platform", currentPlatform)
		if err := s.Save(); err != nil {
			logging.Warn("failed to persist migrated install state", "error", err)
		}
		return s
	}

	for name, msg := range raw {
		platform := catalog.Platform(name)
		if !platform.Valid() {
			logging.Warn("ignoring unknown platform in install state", "platform", name)
			continue
		}
		games := make(map[string]string)
		if err := json.Unmarshal(msg, &games); err != nil {
			logging.Warn("install state platform section is corrupt, dropping it", "platform", name, "error", err)
			continue
		}
		s.platforms[platform] = games
	}

	return s
}

func emptyPlatforms() map[catalog.Platform]map[string]string {
	m := make(map[catalog.Platform]map[string]string, len(catalog.KnownPlatforms))
	for _, p := range catalog.KnownPlatforms {
		m[p] = make(map[string]string)
	}
	return m
}

// isLegacySchema reports whether the raw object is the flat
// gameId -> path form. The current schema's values are objects; the legacy
// schema's values are strings. An empty object is current.
func isLegacySchema(raw map[string]json.RawMessage) bool {
	for _, msg := range raw {
		var str string
		if json.Unmarshal(msg, &str) == nil {
			return true
		}
		return false
	}
	return false
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Get returns the install root recorded for (platform, gameID).
func (s *Store) Get(platform catalog.Platform, gameID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.platforms[platform][gameID]
	return root, ok
}

// InstallRoot returns the install root for a title as seen from platform,
// consulting the Windows key as well on platforms with a compatibility
// layer. The second return names the platform key the record was found
// under.
func (s *Store) InstallRoot(platform catalog.Platform, gameID string) (string, catalog.Platform, bool) {
	if root, ok := s.Get(platform, gameID); ok {
		return root, platform, true
	}
	if platform.SupportsCompatLayer() {
		if root, ok := s.Get(catalog.Windows, gameID); ok {
			return root, catalog.Windows, true
		}
	}
	return "", "", false
}

// Installed reports whether a title is logically installed as seen from
// platform.
func (s *Store) Installed(platform catalog.Platform, gameID string) bool {
	_, _, ok := s.InstallRoot(platform, gameID)
	return ok
}

// Set records the install root for (platform, gameID) and persists the
// store. A persistence failure is returned but the in-memory state keeps
// the new value; it stays authoritative for the session.
func (s *Store) Set(platform catalog.Platform, gameID, installRoot string) error {
	s.mu.Lock()
	if s.platforms[platform] == nil {
		s.platforms[platform] = make(map[string]string)
	}
	s.platforms[platform][gameID] = installRoot
	s.mu.Unlock()

	return s.Save()
}

// Remove deletes the record for (platform, gameID) and persists the store.
func (s *Store) Remove(platform catalog.Platform, gameID string) error {
	s.mu.Lock()
	delete(s.platforms[platform], gameID)
	s.mu.Unlock()

	return s.Save()
}

// Count returns the total number of recorded installs across platforms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, games := range s.platforms {
		n += len(games)
	}
	return n
}

// Save writes the full current state to disk. The write is atomic from the
// caller's perspective: a temp file in the same directory is fsynced and
// renamed over the old one, so no partial state is observable on restart.
// Saves are serialized end to end; without that, two in-flight saves could
// rename out of order and persist a snapshot missing the later mutation.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	out := make(map[string]map[string]string, len(s.platforms))
	for platform, games := range s.platforms {
		section := make(map[string]string, len(games))
		for id, root := range games {
			section[id] = root
		}
		out[string(platform)] = section
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode install state: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save install state: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to path via a fsynced temp file in the same
// directory plus a rename, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
