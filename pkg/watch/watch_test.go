package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherFiresOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte("source:\n  celex: x\n"), 0644); err != nil {
		t.Fatalf("failed to write workflow: %v", err)
	}

	var fired atomic.Int32
	watcher, err := New(func() { fired.Add(1) }, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	watcher.SetDebounce(50 * time.Millisecond)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("source:\n  celex: y\n"), 0644); err != nil {
		t.Fatalf("failed to modify workflow: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("callback not invoked after file change")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("failed to write workflow: %v", err)
	}

	var fired atomic.Int32
	watcher, err := New(func() { fired.Add(1) }, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	watcher.SetDebounce(150 * time.Millisecond)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	// A burst of writes inside the debounce window.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("callback invocations: got %d, want 1 for a coalesced burst", got)
	}
}

func TestWatcherIgnoresUnwatchedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatalf("failed to write workflow: %v", err)
	}

	var fired atomic.Int32
	watcher, err := New(func() { fired.Add(1) }, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	watcher.SetDebounce(50 * time.Millisecond)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	// A sibling file in the same directory must not trigger the callback.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write sibling: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("callback invocations: got %d, want 0 for an unwatched file", got)
	}
}

func TestNewRejectsMissingPath(t *testing.T) {
	_, err := New(func() {}, filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for nonexistent path, got nil")
	}
}
