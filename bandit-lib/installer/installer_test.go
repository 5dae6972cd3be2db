package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// incompressible returns n bytes of random data so the gzip-compressed
// archive stays close to n bytes instead of collapsing below the progress
// thresholds the streaming tests rely on.
func incompressible(t *testing.T, n int) []byte {
	t.Helper()

	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// makeArchive builds a gzip-compressed tar archive in memory.
func makeArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func serveArchive(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstall_ExtractsAllMembers(t *testing.T) {
	archive := makeArchive(t, map[string][]byte{
		"game/bin/run.exe":    []byte("binary"),
		"game/data/world.dat": bytes.Repeat([]byte{0xAB}, 4096),
	})
	srv := serveArchive(t, archive)
	target := t.TempDir()

	inst := New()
	err := inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: target,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(target, "game", "bin", "run.exe"))
	require.NoError(t, err)
	assert.Equal(t, []byte("binary"), data)

	info, err := os.Stat(filepath.Join(target, "game", "data", "world.dat"))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	assert.Nil(t, inst.Session(), "slot released after completion")
}

func TestInstall_ReportsProgressWithContentLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 64*1024)
	archive := makeArchive(t, map[string][]byte{"game/big.bin": payload})
	srv := serveArchive(t, archive)

	var lastTransferred, lastTotal atomic.Int64
	inst := New()
	err := inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: t.TempDir(),
		Progress: func(transferred, total int64) {
			lastTransferred.Store(transferred)
			lastTotal.Store(total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(archive)), lastTransferred.Load(),
		"counter is monotonic over compressed bytes")
	assert.Equal(t, int64(len(archive)), lastTotal.Load(),
		"server-reported length wins")
}

func TestInstall_SizeHintUsedWhenLengthUnknown(t *testing.T) {
	archive := makeArchive(t, map[string][]byte{"game/a.bin": bytes.Repeat([]byte{1}, 8192)})

	// Chunked response: no Content-Length header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < len(archive); i += 1024 {
			end := i + 1024
			if end > len(archive) {
				end = len(archive)
			}
			_, _ = w.Write(archive[i:end])
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	var sawTotal atomic.Int64
	inst := New()
	err := inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: t.TempDir(),
		SizeHint:  int64(len(archive)),
		Progress: func(_, total int64) {
			sawTotal.Store(total)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(archive)), sawTotal.Load(), "catalog hint fills in for a missing length")
}

func TestInstall_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	inst := New()
	err := inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "404")
}

func TestInstall_MalformedArchiveFails(t *testing.T) {
	srv := serveArchive(t, []byte("this is not a gzip stream"))

	inst := New()
	err := inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestInstall_SingleDownloadSlot(t *testing.T) {
	archive := makeArchive(t, map[string][]byte{"game/slow.bin": incompressible(t, 256*1024)})

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write(archive[:1024])
		flusher.Flush()
		<-release
		_, _ = w.Write(archive[1024:])
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	inst := New()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- inst.Install(context.Background(), Request{
			GameID:    "first",
			SourceURL: srv.URL,
			TargetDir: t.TempDir(),
			Progress: func(transferred, _ int64) {
				select {
				case <-started:
				default:
					close(started)
				}
			},
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first download never started")
	}

	err := inst.Install(context.Background(), Request{
		GameID:    "second",
		SourceURL: srv.URL,
		TargetDir: t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrBusy)

	sess := inst.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "first", sess.GameID)

	release <- struct{}{}
	require.NoError(t, <-done)
}

func TestInstall_CancelMidStream(t *testing.T) {
	// A large archive served in small flushed chunks so cancellation lands
	// mid-stream.
	archive := makeArchive(t, map[string][]byte{"game/huge.bin": incompressible(t, 1024*1024)})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < len(archive); i += 4096 {
			end := i + 4096
			if end > len(archive) {
				end = len(archive)
			}
			if _, err := w.Write(archive[i:end]); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	t.Cleanup(srv.Close)

	inst := New()
	target := t.TempDir()

	cancelled := make(chan struct{})
	var once atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- inst.Install(context.Background(), Request{
			GameID:    "game",
			SourceURL: srv.URL,
			TargetDir: target,
			Progress: func(transferred, _ int64) {
				if transferred > 8192 && once.CompareAndSwap(false, true) {
					go func() {
						assert.True(t, inst.Cancel())
						close(cancelled)
					}()
				}
			},
		})
	}()

	select {
	case <-cancelled:
	case <-time.After(10 * time.Second):
		t.Fatal("cancellation was never requested")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled, "cancel must terminate as Cancelled, never Success")
	case <-time.After(5 * time.Second):
		t.Fatal("install did not observe cancellation within a bounded interval")
	}

	assert.Nil(t, inst.Session())
}

func TestCancel_UnblocksStalledConnection(t *testing.T) {
	// A server that never sends headers: the abort hook must already be in
	// place when the session becomes visible, or the blocked request would
	// only die at the header timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	inst := New()
	done := make(chan error, 1)
	go func() {
		done <- inst.Install(context.Background(), Request{
			GameID:    "game",
			SourceURL: srv.URL,
			TargetDir: t.TempDir(),
		})
	}()

	require.Eventually(t, func() bool { return inst.Session() != nil },
		5*time.Second, 10*time.Millisecond, "session never became visible")
	require.True(t, inst.Cancel())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not unblock the stalled request")
	}
}

func TestCancel_NoActiveDownload(t *testing.T) {
	inst := New()

	assert.False(t, inst.Cancel())
}

func TestCancel_Idempotent(t *testing.T) {
	inst := New()
	sess := &session{gameID: "x"}
	require.NoError(t, inst.acquire(sess))
	defer inst.release()

	assert.True(t, inst.Cancel())
	assert.True(t, inst.Cancel())
	assert.True(t, sess.cancelled.Load())
}

func TestMemberPath_RejectsEscapes(t *testing.T) {
	tests := []struct {
		name   string
		member string
		ok     bool
	}{
		{"plain member", "game/bin.exe", true},
		{"nested member", "game/data/a/b/c.dat", true},
		{"parent escape", "../evil.sh", false},
		{"nested escape", "game/../../evil.sh", false},
		{"absolute path", "/etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := memberPath("/install", tt.member)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExtractStream_PartialTreeLeftOnFailure(t *testing.T) {
	// A valid first member followed by garbage: the first file stays on
	// disk for diagnostics, no rollback.
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "game/ok.txt", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Flush())
	require.NoError(t, gw.Close())
	_, _ = buf.Write([]byte("garbage instead of the next header"))

	target := t.TempDir()
	srv := serveArchive(t, buf.Bytes())

	inst := New()
	err = inst.Install(context.Background(), Request{
		GameID:    "game",
		SourceURL: srv.URL,
		TargetDir: target,
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(target, "game", "ok.txt"))
	assert.NoError(t, statErr, "partial extraction is left in place")
}
