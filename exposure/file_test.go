package exposure

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileDirectoryMissingFileIsEmpty(t *testing.T) {
	directory, err := NewFileDirectory(filepath.Join(t.TempDir(), "exposures.json"))
	if err != nil {
		t.Fatalf("NewFileDirectory failed: %v", err)
	}
	ids, err := directory.FetchExposedIDs(context.Background())
	if err != nil {
		t.Fatalf("FetchExposedIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestFileDirectoryPublishMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exposures.json")
	directory, err := NewFileDirectory(path)
	if err != nil {
		t.Fatalf("NewFileDirectory failed: %v", err)
	}

	ctx := context.Background()
	if err := directory.PublishExposedIDs(ctx, []string{"b", "a"}); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	if err := directory.PublishExposedIDs(ctx, []string{"c", "a"}); err != nil {
		t.Fatalf("second publish failed: %v", err)
	}

	ids, err := directory.FetchExposedIDs(ctx)
	if err != nil {
		t.Fatalf("FetchExposedIDs failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected merged ids %v", ids)
	}
}

func TestFileDirectoryRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exposures.json")
	if err := os.WriteFile(path, []byte("[1,2"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	directory, err := NewFileDirectory(path)
	if err != nil {
		t.Fatalf("NewFileDirectory failed: %v", err)
	}
	if _, err := directory.FetchExposedIDs(context.Background()); err == nil {
		t.Fatalf("expected malformed file to fail")
	}
}

func TestFileDirectoryWatchReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exposures.json")
	directory, err := NewFileDirectory(path)
	if err != nil {
		t.Fatalf("NewFileDirectory failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- directory.Watch(ctx, func() { changes.Add(1) })
	}()

	// Writes before the watcher is registered are missed; keep writing.
	deadline := time.Now().Add(2 * time.Second)
	for changes.Load() == 0 && time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte(`{"ids":["x"]}`), 0o600); err != nil {
			t.Fatalf("write file: %v", err)
		}
		time.Sleep(25 * time.Millisecond)
	}
	if changes.Load() == 0 {
		t.Fatalf("expected change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}
