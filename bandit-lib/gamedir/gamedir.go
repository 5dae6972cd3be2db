// Package gamedir derives and validates the on-disk folder of an installed
// title. Every destructive or relocating operation resolves its target here
// first; the functions are pure and never touch the filesystem beyond
// reading it.
package gamedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath marks a path that must never be used as a deletion or move
// target: traversal attempts, filesystem roots, or escapes from the install
// root. It is never downgraded and no confirmation can bypass it.
var ErrUnsafePath = errors.New("unsafe install path")

// FirstFolder returns the top-level directory of an installation, derived
// from the title's relative executable path as published by the catalog.
// The archive extracts this folder directly under the chosen install root.
//
// Rooted paths and traversal segments are rejected: a catalog entry whose
// executable path starts with a separator, a drive letter, "." or ".." is
// malformed or malicious and must not name a deletion target.
func FirstFolder(relExecPath string) (string, error) {
	if strings.TrimSpace(relExecPath) == "" {
		return "", fmt.Errorf("%w: empty executable path", ErrUnsafePath)
	}

	// Catalog entries for Windows titles use backslashes.
	norm := strings.ReplaceAll(relExecPath, "\\", "/")

	if strings.HasPrefix(norm, "/") {
		return "", fmt.Errorf("%w: rooted executable path %q", ErrUnsafePath, relExecPath)
	}
	if len(norm) >= 2 && norm[1] == ':' {
		return "", fmt.Errorf("%w: drive-rooted executable path %q", ErrUnsafePath, relExecPath)
	}

	first := norm
	if idx := strings.Index(norm, "/"); idx >= 0 {
		first = norm[:idx]
	}

	switch strings.TrimSpace(first) {
	case "", ".", "..":
		return "", fmt.Errorf("%w: executable path %q has no usable first folder", ErrUnsafePath, relExecPath)
	}

	return first, nil
}

// ResolveInstallFolder computes the canonical folder that holds a title's
// extracted content: the first folder of relExecPath under installRoot.
//
// It rejects install roots that resolve to a filesystem or drive root, and
// rejects any resolved target that is not a strict descendant of the
// resolved install root, so neither crafted relative paths nor symlinks can
// point a destructive operation outside the root.
func ResolveInstallFolder(installRoot, relExecPath string) (string, error) {
	first, err := FirstFolder(relExecPath)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(installRoot) == "" {
		return "", fmt.Errorf("%w: empty install root", ErrUnsafePath)
	}

	absRoot, err := filepath.Abs(installRoot)
	if err != nil {
		return "", fmt.Errorf("resolve install root %q: %w", installRoot, err)
	}
	// The root may have been deleted out of band; fall back to the lexical
	// path so stale records can still be resolved and cleared.
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if os.IsNotExist(err) {
		realRoot = filepath.Clean(absRoot)
	} else if err != nil {
		return "", fmt.Errorf("resolve install root %q: %w", installRoot, err)
	}

	if isFilesystemRoot(realRoot) {
		return "", fmt.Errorf("%w: install root %q is a filesystem root", ErrUnsafePath, installRoot)
	}

	target := filepath.Join(realRoot, first)

	// The folder may legitimately be absent (stale state); only resolve
	// symlinks when it exists.
	realTarget := target
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		realTarget = resolved
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve install folder %q: %w", target, err)
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes install root %q", ErrUnsafePath, realTarget, installRoot)
	}

	return realTarget, nil
}

// isFilesystemRoot reports whether path is "/" or a drive root like "C:\".
func isFilesystemRoot(path string) bool {
	return filepath.Dir(path) == path
}
