package library

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches editor save bursts into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a Library when its file changes on disk.
type Watcher struct {
	lib      *Library
	watcher  *fsnotify.Watcher
	debounce time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for lib's backing file.
func NewWatcher(lib *Library, debounce time.Duration) (*Watcher, error) {
	if lib.path == "" {
		return nil, ErrNoPath
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		lib:      lib,
		watcher:  w,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the file's directory, so atomic saves that replace the file
// are seen, and returns once the watch is installed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.lib.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	target := filepath.Clean(w.lib.path)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			_ = w.lib.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.lib.log.Warn("gesture library watch error", zap.Error(err))
		}
	}
}
