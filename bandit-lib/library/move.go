package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/felixband/bandit/bandit-lib/gamedir"
	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/metrics"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"github.com/shirou/gopsutil/v4/disk"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInsufficientSpace is returned when the destination volume cannot hold
// the installation plus a safety margin.
var ErrInsufficientSpace = errors.New("not enough free space")

// spaceMarginPercent is the headroom required on top of the tree size
// before a move or install is allowed to start.
const spaceMarginPercent = 10

// CheckFreeSpace verifies that dir's volume has room for required bytes
// plus the safety margin. dir need not exist yet; the nearest existing
// ancestor's volume is measured. Returns ErrInsufficientSpace with both
// amounts when there is no room.
func CheckFreeSpace(dir string, required uint64) error {
	probe := dir
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	usage, err := disk.Usage(probe)
	if err != nil {
		return fmt.Errorf("check free space on %s: %w", dir, err)
	}

	needed := required + required*spaceMarginPercent/100
	if usage.Free < needed {
		return fmt.Errorf("%w on %s: need %s, have %s", ErrInsufficientSpace,
			dir, humanize.IBytes(needed), humanize.IBytes(usage.Free))
	}
	return nil
}

// Move relocates a title's installation folder under newParent and updates
// the install record to point there. The destination volume must have room
// for the whole tree plus a margin before anything is touched. When a
// folder of the same name already exists under newParent, confirm must
// approve replacing it.
func (l *Library) Move(ctx context.Context, gameID, relExecPath, newParent string, confirm ConfirmFunc) error {
	_, span := tracing.StartSpan(ctx, "library.move",
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
		metrics.Moves.WithLabelValues("failed").Inc()
		tracing.RecordError(span, err)
		return fmt.Errorf("move %s: %w", gameID, err)
	}
	if _, err := os.Stat(folder); err != nil {
		metrics.Moves.WithLabelValues("failed").Inc()
		return fmt.Errorf("move %s: install folder missing: %w", gameID, err)
	}

	// Pre-flight below must not touch the filesystem: a rejected move
	// leaves no trace, not even the destination parent.
	absParent, err := filepath.Abs(newParent)
	if err != nil {
		return fmt.Errorf("move %s: resolve destination %q: %w", gameID, newParent, err)
	}
	if realParent, err := filepath.EvalSymlinks(absParent); err == nil {
		absParent = realParent
	}
	if absParent == filepath.Dir(folder) {
		return fmt.Errorf("move %s: already installed under %s", gameID, absParent)
	}

	size, err := treeSize(folder)
	if err != nil {
		metrics.Moves.WithLabelValues("failed").Inc()
		return fmt.Errorf("move %s: %w", gameID, err)
	}
	if err := CheckFreeSpace(absParent, size); err != nil {
		if errors.Is(err, ErrInsufficientSpace) {
			metrics.Moves.WithLabelValues("no_space").Inc()
		} else {
			metrics.Moves.WithLabelValues("failed").Inc()
		}
		tracing.RecordError(span, err)
		return fmt.Errorf("move %s: %w", gameID, err)
	}

	dest := filepath.Join(absParent, filepath.Base(folder))
	if _, err := os.Stat(dest); err == nil {
		if confirm == nil || !confirm(dest) {
			return fmt.Errorf("move %s: %w", gameID, ErrDeclined)
		}
		if err := os.RemoveAll(dest); err != nil {
			metrics.Moves.WithLabelValues("failed").Inc()
			return fmt.Errorf("move %s: %w", gameID, err)
		}
	}

	if err := os.MkdirAll(absParent, 0o755); err != nil {
		metrics.Moves.WithLabelValues("failed").Inc()
		return fmt.Errorf("move %s: %w", gameID, err)
	}
	if err := moveTree(folder, dest); err != nil {
		metrics.Moves.WithLabelValues("failed").Inc()
		tracing.RecordError(span, err)
		return fmt.Errorf("move %s: %w", gameID, err)
	}

	if err := l.store.Set(foundUnder, gameID, absParent); err != nil {
		return fmt.Errorf("move %s: moved but failed to update record: %w", gameID, err)
	}

	metrics.Moves.WithLabelValues("moved").Inc()
	tracing.SetSpanOK(span)
	logging.Info("moved install", "game_id", gameID, "from", folder, "to", dest,
		"size", humanize.IBytes(size))
	return nil
}

// treeSize sums the regular-file sizes under dir.
func treeSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", dir, err)
	}
	return total, nil
}

// moveTree renames src to dest, falling back to a copy-and-delete when the
// destination is on a different volume.
func moveTree(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	logging.Debug("rename crossed volumes, copying", "from", src, "to", dest)
	if err := copyTree(src, dest); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target, d)
		default:
			return nil
		}
	})
}

func copyFile(src, dest string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
