// Package watch ingests documents dropped into a directory.
//
// Each supported file is ingested once, after it has stopped changing for
// the settle period. A failed ingest (an empty placeholder file, an offline
// embedder) is retried on the file's next write. Edits after a successful
// ingest are ignored; re-embedding changed files is not supported by the
// index.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docrag/internal/loader"
	"docrag/internal/service"
)

// DefaultSettle is the quiet period before a new file is ingested.
const DefaultSettle = 500 * time.Millisecond

// Ingester loads and indexes a file.
type Ingester interface {
	AddFile(ctx context.Context, path, name string) service.IngestResult
}

// Watcher feeds new files in a directory to an Ingester.
type Watcher struct {
	ing    Ingester
	log    *slog.Logger
	settle time.Duration

	// OnIngest, when set, is called after every ingest attempt.
	OnIngest func(service.IngestResult)

	mu     sync.Mutex
	seen   map[string]struct{}
	timers map[string]*time.Timer
}

// New creates a watcher. A non-positive settle uses DefaultSettle.
func New(ing Ingester, log *slog.Logger, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		ing:    ing,
		log:    log,
		settle: settle,
		seen:   make(map[string]struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// MarkSeen records paths that were already ingested so they are skipped.
func (w *Watcher) MarkSeen(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			w.seen[abs] = struct{}{}
		}
	}
}

// Run watches dir until ctx is cancelled. Ingests happen one at a time on
// the calling goroutine.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}
	w.log.Info("watching directory", "dir", dir, "extensions", loader.Extensions())

	ready := make(chan string, 16)
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !loader.Supported(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name, ready)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "err", err)
		case path := <-ready:
			w.ingest(ctx, path)
		}
	}
}

// schedule (re)starts the settle timer for path unless it was already ingested.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, done := w.seen[abs]; done {
		return
	}
	if t, ok := w.timers[abs]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[abs] = time.AfterFunc(w.settle, func() {
		select {
		case ready <- abs:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	_, done := w.seen[path]
	w.mu.Unlock()
	if done {
		return
	}

	// only successful ingests are final; a later write retries a failure
	res := w.ing.AddFile(ctx, path, "")
	if res.OK() {
		w.mu.Lock()
		w.seen[path] = struct{}{}
		w.mu.Unlock()
		w.log.Info("watched file ingested", "path", path, "fragments", res.Fragments)
	} else {
		w.log.Warn("watched file rejected", "path", path, "reason", res.Reason(), "err", res.Err)
	}
	if w.OnIngest != nil {
		w.OnIngest(res)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}
