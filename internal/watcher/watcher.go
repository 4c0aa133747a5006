// Package watcher reloads config documents that are edited on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounceDuration = 200 * time.Millisecond

// ReloadFunc re-reads one document into memory.
type ReloadFunc func() error

// Watcher calls a document's ReloadFunc after the file changes.
type Watcher struct {
	dir      string
	reloads  map[string]ReloadFunc
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New watches dir. reloads is keyed by document file name; events for other
// files are ignored.
func New(dir string, reloads map[string]ReloadFunc, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:      dir,
		reloads:  reloads,
		watcher:  fw,
		log:      log,
		debounce: defaultDebounceDuration,
		timers:   make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetDebounceDuration sets how long a document must be quiet before it is reloaded.
func (w *Watcher) SetDebounceDuration(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.log.Info("watching config documents", zap.String("dir", w.dir))
	return nil
}

// Stop ends the event loop and cancels pending reloads.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Documents are replaced by rename, which surfaces as Create.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.handleEvent(event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	reload, ok := w.reloads[name]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[name]; exists {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		if err := reload(); err != nil {
			w.log.Error("config reload failed", zap.String("document", name), zap.Error(err))
			return
		}
		w.log.Info("config document reloaded", zap.String("document", name))
	})
}
