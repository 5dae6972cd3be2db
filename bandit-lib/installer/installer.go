// Package installer streams a title's gzip-compressed tar archive from the
// catalog service and extracts it member by member under the chosen install
// root. The archive is never staged on disk and no more than normal
// buffering is held in memory.
//
// The installer does not roll back partially extracted files on failure;
// the partial tree is left in place for diagnostics and the caller must not
// record an install for a non-nil result.
package installer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixband/bandit/bandit-lib/logging"
	"github.com/felixband/bandit/bandit-lib/metrics"
	"github.com/felixband/bandit/bandit-lib/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	connectTimeout  = 5 * time.Second
	idleReadTimeout = 30 * time.Second
)

var (
	// ErrCancelled is the terminal state of a user-cancelled install. It is
	// never conflated with a failure.
	ErrCancelled = errors.New("download cancelled")

	// ErrBusy is returned when an install is requested while another is in
	// flight. There is a single global download slot.
	ErrBusy = errors.New("another download is in progress")
)

// ProgressFunc receives cumulative transfer progress. total is 0 when the
// expected size is unknown. Callers throttle their own UI updates.
type ProgressFunc func(transferred, total int64)

// Request describes one install operation.
type Request struct {
	GameID    string
	SourceURL string
	TargetDir string
	// SizeHint is the catalog-declared archive size, used when the server
	// does not report a content length. 0 means unknown.
	SizeHint int64
	Progress ProgressFunc
}

// Session is a point-in-time snapshot of the in-flight download, for a
// presentation layer to poll.
type Session struct {
	GameID      string
	SourceURL   string
	TargetDir   string
	TotalBytes  int64 // 0 when unknown
	Transferred int64
}

type session struct {
	gameID      string
	sourceURL   string
	targetDir   string
	total       int64
	transferred atomic.Int64
	cancelled   atomic.Bool
	// abort unblocks the network read on cancel. Set before the session is
	// published via acquire and never written again, so Cancel may read it
	// under the installer mutex without racing.
	abort context.CancelFunc
}

// Installer owns the single global download slot.
type Installer struct {
	mu     sync.Mutex
	active *session

	httpClient *http.Client
}

// New creates an installer with bounded connect and idle-read timeouts.
func New() *Installer {
	return &Installer{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: idleReadTimeout,
			},
		},
	}
}

// Session returns a snapshot of the active download, or nil when idle.
func (i *Installer) Session() *Session {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active == nil {
		return nil
	}
	return &Session{
		GameID:      i.active.gameID,
		SourceURL:   i.active.sourceURL,
		TargetDir:   i.active.targetDir,
		TotalBytes:  i.active.total,
		Transferred: i.active.transferred.Load(),
	}
}

// Cancel requests cancellation of the active download. It is idempotent
// and safe from any goroutine; the read loop observes it within one chunk.
// Returns false when no download is active.
func (i *Installer) Cancel() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active == nil {
		return false
	}
	i.active.cancelled.Store(true)
	if i.active.abort != nil {
		i.active.abort()
	}
	return true
}

func (i *Installer) acquire(sess *session) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active != nil {
		return fmt.Errorf("%w: %s", ErrBusy, i.active.gameID)
	}
	i.active = sess
	return nil
}

func (i *Installer) release() {
	i.mu.Lock()
	i.active = nil
	i.mu.Unlock()
}

// Install downloads and extracts one title. It blocks until the operation
// terminates and returns nil on success, ErrCancelled on cancellation, or
// a failure error. The caller must only record an install on nil.
func (i *Installer) Install(ctx context.Context, req Request) error {
	ctx, span := tracing.StartSpan(ctx, "installer.install",
		tracing.WithAttributes(attribute.String("game_id", req.GameID)),
	)
	defer span.End()

	ctx, abort := context.WithCancel(ctx)
	defer abort()

	sess := &session{
		gameID:    req.GameID,
		sourceURL: req.SourceURL,
		targetDir: req.TargetDir,
		total:     req.SizeHint,
		abort:     abort,
	}
	if err := i.acquire(sess); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	defer i.release()

	start := time.Now()
	err := i.run(ctx, sess, req.Progress)
	switch {
	case err == nil:
		metrics.RecordDownload("success")
		metrics.RecordInstallDuration(start)
		tracing.SetSpanOK(span)
		logging.Info("install finished", "game_id", req.GameID, "bytes", sess.transferred.Load())
	case errors.Is(err, ErrCancelled):
		metrics.RecordDownload("cancelled")
		logging.Info("install cancelled", "game_id", req.GameID, "bytes", sess.transferred.Load())
	default:
		metrics.RecordDownload("failed")
		tracing.RecordError(span, err)
		logging.Error("install failed", "game_id", req.GameID, "error", err)
	}
	return err
}

func (i *Installer) run(ctx context.Context, sess *session, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		if sess.cancelled.Load() {
			return ErrCancelled
		}
		return fmt.Errorf("download %s: %w", sess.sourceURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %s", sess.sourceURL, resp.Status)
	}

	// Expected size: server-reported length, then the catalog hint, then
	// unknown (progress degrades to a bare byte count).
	if resp.ContentLength > 0 {
		sess.total = resp.ContentLength
	}

	// Abort the connection when no bytes arrive for a full idle window.
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(idleReadTimeout, func() {
		timedOut.Store(true)
		sess.abort()
	})
	defer watchdog.Stop()

	cr := &countingReader{
		r:        resp.Body,
		sess:     sess,
		total:    sess.total,
		progress: progress,
		touch:    func() { watchdog.Reset(idleReadTimeout) },
	}

	err = extractStream(cr, sess.targetDir)
	switch {
	case err == nil:
		return nil
	case sess.cancelled.Load():
		// Cancellation wins over whatever error the aborted read chain
		// produced.
		return ErrCancelled
	case timedOut.Load():
		return fmt.Errorf("download %s: no data for %s", sess.sourceURL, idleReadTimeout)
	default:
		return err
	}
}

// extractStream interprets r as a gzip-compressed tar archive and extracts
// it entry by entry under targetDir. Each entry's payload is streamed
// straight to its destination file; neither the archive nor any single
// entry is held in memory or staged on disk.
func extractStream(r io.Reader, targetDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("open archive stream: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := memberPath(targetDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeMember(target, tr, header); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(targetDir, target, header); err != nil {
				return err
			}
		default:
			logging.Debug("skipping unsupported archive member", "name", header.Name, "type", header.Typeflag)
		}
	}
}

// memberPath joins an archive member name onto targetDir, rejecting names
// that would escape it.
func memberPath(targetDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes target directory", name)
	}
	return filepath.Join(targetDir, clean), nil
}

func writeMember(target string, tr *tar.Reader, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}

	mode := header.FileInfo().Mode().Perm()
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}

	if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // size bounded by the stream itself
		_ = f.Close()
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}
	return nil
}

func writeSymlink(targetDir, target string, header *tar.Header) error {
	// Only links that stay inside the target directory are recreated.
	if filepath.IsAbs(header.Linkname) {
		return fmt.Errorf("archive member %q has absolute link target", header.Name)
	}
	resolved := filepath.Join(filepath.Dir(target), header.Linkname)
	rel, err := filepath.Rel(targetDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("archive member %q links outside target directory", header.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}
	_ = os.Remove(target)
	if err := os.Symlink(header.Linkname, target); err != nil {
		return fmt.Errorf("extract %s: %w", header.Name, err)
	}
	return nil
}
