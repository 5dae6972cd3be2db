package library

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/felixband/bandit/bandit-lib/catalog"
	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Launch describes how to start an installed title: the command line, the
// working directory and any extra environment. Titles run from their
// executable's containing directory so relative asset loading works.
type Launch struct {
	Args []string
	Dir  string
	Env  []string // appended to the parent environment
}

// LaunchSpec resolves the full command needed to start a title. A Windows
// title resolved on a platform with a compatibility layer is wrapped in the
// configured compat command with the prefix exported in the environment.
func (l *Library) LaunchSpec(gameID, relExecPath string) (*Launch, error) {
	root, foundUnder, ok := l.store.InstallRoot(l.platform, gameID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, gameID)
	}

	execPath := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(relExecPath, "\\", "/")))
	if _, err := os.Stat(execPath); err != nil {
		return nil, fmt.Errorf("launch %s: executable missing: %w", gameID, err)
	}

	spec := &Launch{
		Args: []string{execPath},
		Dir:  filepath.Dir(execPath),
	}

	if foundUnder == catalog.Windows && l.platform != catalog.Windows {
		if l.compat.Command == "" {
			return nil, fmt.Errorf("launch %s: windows title but no compatibility layer configured", gameID)
		}
		spec.Args = append([]string{l.compat.Command}, spec.Args...)
		if l.compat.PrefixDir != "" {
			spec.Env = append(spec.Env, "WINEPREFIX="+l.compat.PrefixDir)
		}
	}

	return spec, nil
}

// Play launches a title and waits for it to exit.
func (l *Library) Play(ctx context.Context, gameID, relExecPath string) error {
	ctx, span := tracing.StartSpan(ctx, "library.play",
		tracing.WithAttributes(attribute.String("game_id", gameID)),
	)
	defer span.End()

	spec, err := l.LaunchSpec(gameID, relExecPath)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	logging.Info("launching", "game_id", gameID, "command", spec.Args[0], "dir", spec.Dir)
	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("launch %s: %w", gameID, err)
	}
	tracing.SetSpanOK(span)
	return nil
}
