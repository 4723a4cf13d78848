package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp classifies a document change on disk.
type EventOp string

const (
	// OpChange reports a created or modified document.
	OpChange EventOp = "change"

	// OpRemove reports a deleted document.
	OpRemove EventOp = "remove"
)

// Event is a debounced document change.
type Event struct {
	Op   EventOp
	Path string
}

// Watcher watches a directory tree and emits debounced document
// events. Rapid write bursts to the same file collapse into a single
// event; whether the final state is a change or a removal is decided
// when the debounce window closes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	basePath string
	filter   func(string) bool
	events   chan Event
	debounce time.Duration
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over basePath. filter decides which
// files produce events.
func NewWatcher(basePath string, filter func(string) bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		basePath: basePath,
		filter:   filter,
		events:   make(chan Event, 100),
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching and returns the event channel. The channel is
// never closed, consumers stop via their own context.
func (w *Watcher) Start() (<-chan Event, error) {
	if err := w.watchRecursive(w.basePath); err != nil {
		return nil, err
	}
	go w.run()
	return w.events, nil
}

// Stop ends watching and cancels pending debounce timers.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = nil
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Permission and attribute changes do not affect content.
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchRecursive(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if !w.filter(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// schedule arms or extends the debounce timer for a path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.pending != nil {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.emit(path)
	})
}

func (w *Watcher) emit(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	op := OpChange
	if _, err := os.Stat(path); err != nil {
		op = OpRemove
	}

	select {
	case w.events <- Event{Op: op, Path: path}:
	default:
		slog.Warn("Document event dropped, channel full", "path", path)
	}
}

// watchRecursive adds path and every subdirectory to the watcher.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Watch re-indexes documents as files change under the docs directory.
// It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := NewWatcher(e.docsDir, e.extractors.Supported)
	if err != nil {
		return err
	}
	defer w.Stop()

	events, err := w.Start()
	if err != nil {
		return err
	}
	slog.Info("Watching documents for changes", "dir", e.docsDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.Op {
			case OpChange:
				if err := e.ReindexFile(ctx, ev.Path); err != nil {
					slog.Warn("Failed to index changed document", "file", ev.Path, "error", err)
				}
			case OpRemove:
				if err := e.DeleteDocument(ctx, e.documentID(ev.Path)); err != nil {
					slog.Warn("Failed to remove document from index", "file", ev.Path, "error", err)
				}
			}
		}
	}
}
