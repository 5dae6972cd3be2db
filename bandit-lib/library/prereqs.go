package library

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/felixband/bandit/bandit-lib/catalog"
	"github.com/felixband/bandit/bandit-lib/gamedir"
	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// InstallPrereqs runs a title's prerequisite installers in order. Each
// prerequisite names a file shipped inside the installation folder and an
// optional wrapper command; the file is resolved under the title's install
// folder. The sequence stops at the first failure.
//
// On a platform with a compatibility layer, Windows prerequisites run
// through the configured compat command just like the title itself.
func (l *Library) InstallPrereqs(ctx context.Context, gameID, relExecPath string, prereqs []catalog.Prereq) error {
	ctx, span := tracing.StartSpan(ctx, "library.install_prereqs",
		tracing.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.Int("count", len(prereqs)),
		),
	)
	defer span.End()

	if len(prereqs) == 0 {
		return nil
	}

	root, foundUnder, ok := l.store.InstallRoot(l.platform, gameID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, gameID)
	}
	folder, err := gamedir.ResolveInstallFolder(root, relExecPath)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("prerequisites for %s: %w", gameID, err)
	}

	for i, prereq := range prereqs {
		if err := l.runPrereq(ctx, folder, foundUnder, prereq); err != nil {
			tracing.RecordError(span, err)
			return fmt.Errorf("prerequisite %d/%d for %s: %w", i+1, len(prereqs), gameID, err)
		}
	}

	tracing.SetSpanOK(span)
	logging.Info("prerequisites installed", "game_id", gameID, "count", len(prereqs))
	return nil
}

func (l *Library) runPrereq(ctx context.Context, folder string, foundUnder catalog.Platform, prereq catalog.Prereq) error {
	target := filepath.Join(folder, filepath.FromSlash(strings.ReplaceAll(prereq.Path, "\\", "/")))
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("installer missing: %w", err)
	}

	args := []string{target}
	if prereq.Command != "" {
		args = append(strings.Fields(prereq.Command), target)
	}
	if foundUnder == catalog.Windows && l.platform != catalog.Windows {
		if l.compat.Command == "" {
			return fmt.Errorf("windows prerequisite but no compatibility layer configured")
		}
		args = append([]string{l.compat.Command}, args...)
	}

	logging.Info("running prerequisite", "command", args[0], "target", target)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = folder
	cmd.Env = os.Environ()
	if foundUnder == catalog.Windows && l.compat.PrefixDir != "" {
		cmd.Env = append(cmd.Env, "WINEPREFIX="+l.compat.PrefixDir)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", filepath.Base(target), err)
	}
	return nil
}
