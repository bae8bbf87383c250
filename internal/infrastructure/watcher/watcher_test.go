package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatched(t *testing.T, debounce time.Duration) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "defects.yaml")
	if err := os.WriteFile(path, []byte("qe: {}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w, err := New(WithDebounce(debounce))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if err := w.WatchFile(path); err != nil {
		t.Fatalf("watch file: %v", err)
	}
	return w, path
}

func TestWatcherDetectsConfigWrite(t *testing.T) {
	w, path := newWatched(t, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := w.Events(ctx)

	if err := os.WriteFile(path, []byte("qe: {url: x}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-events:
	case <-ctx.Done():
		t.Fatal("timeout waiting for file change event")
	}
}

func TestWatcherDetectsReplaceOnSave(t *testing.T) {
	w, path := newWatched(t, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := w.Events(ctx)

	tmp := path + ".swp"
	if err := os.WriteFile(tmp, []byte("qe: {url: y}\n"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case <-events:
	case <-ctx.Done():
		t.Fatal("timeout waiting for replace event")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	w, path := newWatched(t, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	events := w.Events(ctx)

	other := filepath.Join(filepath.Dir(path), "defects.qe.20240101.20240131.bounce.report")
	if err := os.WriteFile(other, []byte("report"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-events:
		t.Fatal("should not receive event for an unwatched file")
	case <-ctx.Done():
	}
}

func TestWatcherDebounces(t *testing.T) {
	w, path := newWatched(t, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := w.Events(ctx)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("# "+string(rune('a'+i))), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(300 * time.Millisecond)
loop:
	for {
		select {
		case <-events:
			eventCount++
		case <-timeout:
			break loop
		}
	}

	if eventCount != 1 {
		t.Fatalf("expected 1 debounced event, got %d", eventCount)
	}
}

func TestWatchFileMissingDirectory(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if err := w.WatchFile(filepath.Join(t.TempDir(), "missing", "defects.yaml")); err == nil {
		t.Fatal("expected error watching a file in a missing directory")
	}
}
