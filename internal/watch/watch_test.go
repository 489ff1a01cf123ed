package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docrag/internal/domain"
	"docrag/internal/service"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
}

// AddFile rejects empty files the way the service does.
func (r *recordingIngester) AddFile(_ context.Context, path, name string) service.IngestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	res := service.IngestResult{Source: filepath.Base(path)}
	b, err := os.ReadFile(path)
	switch {
	case err != nil:
		res.Err = err
	case len(strings.TrimSpace(string(b))) == 0:
		res.Err = domain.ErrEmptyDocument
	default:
		res.Fragments = 1
	}
	return res
}

func (r *recordingIngester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startWatcher(t *testing.T, dir string, ing Ingester) (*Watcher, chan service.IngestResult) {
	t.Helper()
	w := New(ing, slog.New(slog.NewTextHandler(io.Discard, nil)), 50*time.Millisecond)
	done := make(chan service.IngestResult, 8)
	w.OnIngest = func(r service.IngestResult) { done <- r }

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("run: %v", err)
		}
	})
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	return w, done
}

func TestWatcher_IngestsNewFileOnce(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	_, done := startWatcher(t, dir, ing)

	p := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(p, []byte("First draft."), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if r.Source != "new.txt" {
			t.Fatalf("unexpected source %q", r.Source)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("file was not ingested")
	}

	if err := os.WriteFile(p, []byte("Second draft."), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := ing.count(); n != 1 {
		t.Fatalf("expected a single ingest, got %d", n)
	}
}

func TestWatcher_IgnoresUnsupportedAndSeen(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w, done := startWatcher(t, dir, ing)

	known := filepath.Join(dir, "known.md")
	w.MarkSeen(known)
	_ = os.WriteFile(known, []byte("Already loaded."), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte{1, 2, 3}, 0o644)
	_ = os.WriteFile(filepath.Join(dir, "fresh.md"), []byte("New."), 0o644)

	select {
	case r := <-done:
		if r.Source != "fresh.md" {
			t.Fatalf("unexpected source %q", r.Source)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("fresh file was not ingested")
	}
	time.Sleep(200 * time.Millisecond)
	if n := ing.count(); n != 1 {
		t.Fatalf("expected only fresh.md to be ingested, got %d", n)
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	w := New(&recordingIngester{}, nil, 0)
	if err := w.Run(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcher_RetriesAfterFailedIngest(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	_, done := startWatcher(t, dir, ing)

	p := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if r.OK() || r.Reason() != "empty_document" {
			t.Fatalf("expected empty_document, got %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("empty file was not attempted")
	}

	if err := os.WriteFile(p, []byte("Now with content."), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if !r.OK() {
			t.Fatalf("second attempt failed: %v", r.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("file was not retried after being filled")
	}

	if err := os.WriteFile(p, []byte("Edited after ingest."), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := ing.count(); n != 2 {
		t.Fatalf("expected 2 ingest attempts, got %d", n)
	}
}

func TestSchedule_CancelledTimerDoesNotBlock(t *testing.T) {
	w := New(&recordingIngester{}, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ready := make(chan string)
	w.schedule(ctx, filepath.Join(t.TempDir(), "late.txt"), ready)
	time.Sleep(50 * time.Millisecond)

	select {
	case p := <-ready:
		t.Fatalf("timer delivered %q after cancellation", p)
	case <-time.After(50 * time.Millisecond):
	}
}
