// Package library mutates the installed-games state: recording installs,
// uninstalling, moving installations between parent directories, launching
// titles and running their prerequisite installers. Every destructive
// operation resolves its target through gamedir first and refuses to act on
// anything that fails that resolution.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/felixband/bandit/bandit-lib/catalog"
	"github.com/felixband/bandit/bandit-lib/config"
	"github.com/felixband/bandit/bandit-lib/gamedir"
	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/metrics"
	"github.com/felixband/bandit/bandit-lib/state"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotInstalled is returned when an operation targets a title with no
	// recorded install location.
	ErrNotInstalled = errors.New("game is not installed")

	// ErrDeclined is returned when the caller's confirmation callback
	// rejects a destructive step.
	ErrDeclined = errors.New("operation declined")
)

// ConfirmFunc asks the user to approve a destructive step on the given
// path. Destructive operations refuse to proceed without an approval.
type ConfirmFunc func(path string) bool

// Library coordinates mutations of the install state. Operations on the
// same title are serialized; operations on different titles may overlap.
type Library struct {
	store    *state.Store
	platform catalog.Platform
	compat   config.CompatLayer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a library over the given store, acting as platform.
func New(store *state.Store, platform catalog.Platform, compat config.CompatLayer) *Library {
	return &Library{
		store:    store,
		platform: platform,
		compat:   compat,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (l *Library) lock(gameID string) func() {
	l.mu.Lock()
	m, ok := l.locks[gameID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[gameID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Store returns the underlying install-state store.
func (l *Library) Store() *state.Store {
	return l.store
}

// RecordInstall records that gameID was installed under installRoot on the
// current platform. Call this only after the installer reported success.
func (l *Library) RecordInstall(gameID, installRoot string) error {
	defer l.lock(gameID)()

	if err := l.store.Set(l.platform, gameID, installRoot); err != nil {
		return err
	}
	metrics.InstalledGames.Set(float64(l.store.Count()))
	logging.Info("recorded install", "game_id", gameID, "root", installRoot)
	return nil
}

// InstallRoot returns the recorded install root for a title, consulting the
// compatibility-layer platform key where applicable.
func (l *Library) InstallRoot(gameID string) (string, catalog.Platform, bool) {
	return l.store.InstallRoot(l.platform, gameID)
}

// Installed reports whether a title has a recorded install location.
func (l *Library) Installed(gameID string) bool {
	return l.store.Installed(l.platform, gameID)
}

// Uninstall deletes a title's installation folder and removes its record.
//
// The folder is derived from relExecPath under the recorded install root
// and validated; an unvalidated path is never deleted. When the folder no
// longer exists on disk the stale record is dropped and the call succeeds.
// When the folder exists, confirm must approve the deletion.
func (l *Library) Uninstall(ctx context.Context, gameID, relExecPath string, confirm ConfirmFunc) error {
	_, span := tracing.StartSpan(ctx, "library.uninstall",
		tracing.WithAttributes(attribute.String("game_id", gameID)),
	)
	defer span.End()
	defer l.lock(gameID)()

	root, foundUnder, ok := l.store.InstallRoot(l.platform, gameID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, gameID)
	}

	folder, err := gamedir.ResolveInstallFolder(root, relExecPath)
	if err != nil {
		metrics.Uninstalls.WithLabelValues("failed").Inc()
		tracing.RecordError(span, err)
		return fmt.Errorf("uninstall %s: %w", gameID, err)
	}

	if _, err := os.Stat(folder); os.IsNotExist(err) {
		// Deleted out of band. Drop the stale record, nothing to remove.
		logging.Info("install folder already gone, clearing stale record",
			"game_id", gameID, "folder", folder)
		metrics.Uninstalls.WithLabelValues("stale").Inc()
		return l.removeRecord(foundUnder, gameID)
	}

	if confirm == nil || !confirm(folder) {
		return fmt.Errorf("uninstall %s: %w", gameID, ErrDeclined)
	}

	if err := os.RemoveAll(folder); err != nil {
		metrics.Uninstalls.WithLabelValues("failed").Inc()
		tracing.RecordError(span, err)
		return fmt.Errorf("uninstall %s: %w", gameID, err)
	}

	metrics.Uninstalls.WithLabelValues("removed").Inc()
	tracing.SetSpanOK(span)
	logging.Info("uninstalled", "game_id", gameID, "folder", folder)
	return l.removeRecord(foundUnder, gameID)
}

func (l *Library) removeRecord(platform catalog.Platform, gameID string) error {
	if err := l.store.Remove(platform, gameID); err != nil {
		return err
	}
	metrics.InstalledGames.Set(float64(l.store.Count()))
	return nil
}
