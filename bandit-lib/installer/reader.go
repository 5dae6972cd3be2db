package installer

import (
	"io"

	"github.com/felixband/bandit/bandit-lib/metrics"
)

// countingReader wraps the HTTP response body. Every read bumps the
// session's transferred counter and reports progress, and the cancel flag
// is checked both before and after the underlying read so a cancellation
// takes effect within one chunk even mid-member.
type countingReader struct {
	r        io.Reader
	sess     *session
	total    int64
	progress ProgressFunc
	touch    func() // resets the idle-read watchdog
}

func (cr *countingReader) Read(p []byte) (int, error) {
	if cr.sess.cancelled.Load() {
		return 0, ErrCancelled
	}

	n, err := cr.r.Read(p)
	if n > 0 {
		transferred := cr.sess.transferred.Add(int64(n))
		metrics.BytesTransferred.Add(float64(n))
		if cr.touch != nil {
			cr.touch()
		}
		if cr.progress != nil {
			cr.progress(transferred, cr.total)
		}
	}

	if cr.sess.cancelled.Load() {
		return n, ErrCancelled
	}
	return n, err
}
