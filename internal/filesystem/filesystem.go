// Package filesystem wraps the handful of filesystem calls the pipeline makes
// with retry logic for NFS stale file handles. Browsing a directory on an NFS
// mount can hit ESTALE when the server recycles handles; a short exponential
// backoff and re-resolve of the path is usually enough to recover. Non-stale
// errors are returned immediately.
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"image-viewer/internal/logging"
	"image-viewer/internal/metrics"
)

// RetryConfig controls the stale-handle retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry settings used by the package-level
// helpers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func isStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// withRetry runs fn, retrying stale-handle failures with capped exponential
// backoff. Any other error is returned on the first attempt.
func withRetry(op, path string, cfg RetryConfig, fn func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
			}
			return nil
		}
		if !isStale(err) {
			return err
		}
		lastErr = err
		metrics.FsStaleErrorsTotal.WithLabelValues(op).Inc()

		if attempt < cfg.MaxRetries {
			metrics.FsRetriesTotal.WithLabelValues(op).Inc()
			logging.Debug("%s: stale file handle for %s, retrying in %v", op, path, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, cfg.MaxRetries, path, lastErr)
	return lastErr
}

// Stat is os.Stat with stale-handle retries.
func Stat(path string) (os.FileInfo, error) {
	return StatWithRetry(path, DefaultRetryConfig())
}

// StatWithRetry is os.Stat with stale-handle retries under cfg.
func StatWithRetry(path string, cfg RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, cfg, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// Open is os.Open with stale-handle retries.
func Open(path string) (*os.File, error) {
	var f *os.File
	err := withRetry("open", path, DefaultRetryConfig(), func() error {
		var err error
		f, err = os.Open(path)
		return err
	})
	return f, err
}

// ReadDir is os.ReadDir with stale-handle retries.
func ReadDir(path string) ([]os.DirEntry, error) {
	var entries []os.DirEntry
	err := withRetry("readdir", path, DefaultRetryConfig(), func() error {
		var err error
		entries, err = os.ReadDir(path)
		return err
	})
	return entries, err
}
