package fsnotifybackend

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnterDirectoryIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	backend, _, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer backend.Close()

	result := backend.Canonicalize(dir)
	if !result.OK() {
		t.Fatalf("canonicalize: %s", result.Error)
	}

	for i := 0; i < 3; i++ {
		backend.EnterDirectory(result.Path)
	}

	backend.mu.Lock()
	count := len(backend.watched)
	backend.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one watch after repeated EnterDirectory, got %d", count)
	}
}

func TestProcessChangesObservesWrite(t *testing.T) {
	dir := t.TempDir()
	backend, wait, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer backend.Close()

	result := backend.Canonicalize(dir)
	if !result.OK() {
		t.Fatalf("canonicalize: %s", result.Error)
	}
	backend.EnterDirectory(result.Path)

	if err := os.WriteFile(filepath.Join(dir, "quick-lint-js.config"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	observed := false
	for time.Now().Before(deadline) {
		if wait.Wait(200 * time.Millisecond) {
			observed = true
			break
		}
	}
	if !observed {
		t.Fatal("expected the wait handle to observe the write within the timeout")
	}
	if !backend.ProcessChanges() {
		t.Fatal("expected ProcessChanges to report a drained event")
	}
}
