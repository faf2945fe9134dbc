// Package watcher ingests flight logs dropped into a directory.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/pkg/model"
)

// DefaultDebounce is how long a file must stay quiet before ingestion.
const DefaultDebounce = 2 * time.Second

// Ingester stores a log file as a flight.
type Ingester interface {
	Supported(name string) bool
	IngestFile(ctx context.Context, path, originalName string) (*model.Flight, error)
}

// Watcher watches one directory. Files already present at startup are left
// alone; new or rewritten files with a supported extension are ingested
// once writes stop for the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingester Ingester

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup

	ready chan struct{}
}

// New creates a Watcher for dir.
func New(dir string, debounce time.Duration, ing Ingester) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingester: ing,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan struct{}),
	}
}

// Name identifies the watcher in logs.
func (w *Watcher) Name() string { return "watcher" }

// Run watches until ctx is done. Ingestions already started are allowed to
// finish before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	close(w.ready)
	logging.Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("Watching for flight logs")

	defer w.wg.Wait()
	defer w.stopPending()

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
			if !w.ingester.Supported(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Str("dir", w.dir).Msg("Watcher error")
		}
	}
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		if !w.claim(path, t) {
			return
		}
		defer w.wg.Done()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

// claim removes t from pending and reports whether it may ingest. A timer
// that fired after being replaced by a newer one, or after shutdown, loses.
func (w *Watcher) claim(path string, t *time.Timer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[path] != t || w.stopped {
		return false
	}
	delete(w.pending, path)
	w.wg.Add(1)
	return true
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	if _, err := w.ingester.IngestFile(ctx, path, filepath.Base(path)); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Skipping watched file")
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
