package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestStatPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, fastConfig())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 1 {
		t.Fatalf("size = %d, want 1", info.Size())
	}
}

func TestNonStaleErrorNotRetried(t *testing.T) {
	start := time.Now()
	_, err := StatWithRetry(filepath.Join(t.TempDir(), "missing"), fastConfig())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
	// No backoff sleeps should have happened.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("took %v, non-stale errors must fail fast", elapsed)
	}
}

func TestStaleErrorRetriedUntilSuccess(t *testing.T) {
	calls := 0
	err := withRetry("stat", "fake", fastConfig(), func() error {
		calls++
		if calls < 3 {
			return &os.PathError{Op: "stat", Path: "fake", Err: syscall.ESTALE}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil after retries", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestStaleErrorExhaustsRetries(t *testing.T) {
	calls := 0
	err := withRetry("stat", "fake", fastConfig(), func() error {
		calls++
		return &os.PathError{Op: "stat", Path: "fake", Err: syscall.ESTALE}
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("err = %v, want ESTALE", err)
	}
	if calls != 4 { // initial attempt + 3 retries
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}
