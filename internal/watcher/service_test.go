package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServiceReportsTrackedFileOnly(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("one"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	changes := make(chan string, 8)
	service, err := New([]string{tokenPath}, slog.New(slog.NewTextHandler(io.Discard, nil)), func(_ context.Context, path string) {
		changes <- path
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	// Give the watcher a moment to register the directory.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o600); err != nil {
			t.Fatalf("write other: %v", err)
		}
		if err := os.WriteFile(tokenPath, []byte("two"), 0o600); err != nil {
			t.Fatalf("rewrite token: %v", err)
		}
		select {
		case path := <-changes:
			if path != tokenPath {
				t.Fatalf("unexpected change for %s", path)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("start returned: %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no change reported for token file")
		}
	}
}

func TestNewRequiresFiles(t *testing.T) {
	if _, err := New(nil, slog.Default(), nil); err == nil {
		t.Fatal("expected error without files")
	}
}
