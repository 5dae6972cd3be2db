package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/felixband/bandit/bandit-lib/logging"
)

// Favorites persists the user's starred games. The on-disk form is a JSON
// array of game ids; like the install state, a missing or corrupt file
// yields an empty set rather than blocking startup.
type Favorites struct {
	mu   sync.Mutex
	path string
	ids  map[string]struct{}
}

// LoadFavorites reads the favorites file at path.
func LoadFavorites(path string) *Favorites {
	f := &Favorites{
		path: path,
		ids:  make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f
	}
	if err != nil {
		logging.Warn("failed to read favorites, starting empty", "path", path, "error", err)
		return f
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		logging.Warn("favorites file is corrupt, starting empty", "path", path, "error", err)
		return f
	}
	for _, id := range list {
		f.ids[id] = struct{}{}
	}
	return f
}

// Has reports whether a title is starred.
func (f *Favorites) Has(gameID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.ids[gameID]
	return ok
}

// Add stars a title and persists the set. Adding an existing favorite is a
// no-op.
func (f *Favorites) Add(gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ids[gameID]; ok {
		return nil
	}
	f.ids[gameID] = struct{}{}
	return f.save()
}

// Remove unstars a title and persists the set.
func (f *Favorites) Remove(gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ids[gameID]; !ok {
		return nil
	}
	delete(f.ids, gameID)
	return f.save()
}

// List returns the starred game ids in sorted order.
func (f *Favorites) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sorted()
}

func (f *Favorites) sorted() []string {
	list := make([]string, 0, len(f.ids))
	for id := range f.ids {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}

// save is called with f.mu held.
func (f *Favorites) save() error {
	data, err := json.MarshalIndent(f.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return nil
}
