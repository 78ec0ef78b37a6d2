package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, func(context.Context, []string) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write js", fsnotify.Event{Name: filepath.Join(dir, "a.js"), Op: fsnotify.Write}, true},
		{"create upper-case js", fsnotify.Event{Name: filepath.Join(dir, "B.JS"), Op: fsnotify.Create}, true},
		{"remove js", fsnotify.Event{Name: filepath.Join(dir, "a.js"), Op: fsnotify.Remove}, true},
		{"rename js", fsnotify.Event{Name: filepath.Join(dir, "a.js"), Op: fsnotify.Rename}, true},
		{"chmod js", fsnotify.Event{Name: filepath.Join(dir, "a.js"), Op: fsnotify.Chmod}, false},
		{"write other extension", fsnotify.Event{Name: filepath.Join(dir, "a.ts"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Relevant(tt.event); got != tt.want {
				t.Errorf("Relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestRelevant_NamedFileOnly(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.js")
	if err := os.WriteFile(file, []byte("f();"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{file}, func(context.Context, []string) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if !w.Relevant(fsnotify.Event{Name: file, Op: fsnotify.Write}) {
		t.Error("expected the named file to be relevant")
	}
	if w.Relevant(fsnotify.Event{Name: filepath.Join(dir, "other.js"), Op: fsnotify.Write}) {
		t.Error("expected a sibling file to be ignored")
	}
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, func(context.Context, []string) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestRun_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)
	w, err := New([]string{dir}, func(_ context.Context, changed []string) error {
		changes <- changed
		return nil
	}, WithDebounce(200*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	a := filepath.Join(dir, "a.js")
	b := filepath.Join(dir, "b.js")
	for _, p := range []string{a, b, filepath.Join(dir, "notes.txt")} {
		if err := os.WriteFile(p, []byte("f();"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case changed := <-changes:
		if len(changed) != 2 || changed[0] != a || changed[1] != b {
			t.Errorf("expected [%s %s], got %v", a, b, changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
