package appdirectory

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/fsnotify/fsnotify"
)

// fileWatcher calls reload once writes to a single file settle. It watches
// the parent directory so editors that replace the file by rename are seen.
type fileWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	reload   func(ctx context.Context)
	logger   desktopagent.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

func newFileWatcher(path string, debounce time.Duration, logger desktopagent.Logger, reload func(ctx context.Context)) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &fileWatcher{
		watcher:  watcher,
		path:     filepath.Clean(path),
		debounce: debounce,
		reload:   reload,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *fileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *fileWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("Failed to close app directory watcher", "error", err)
	}
}

func (w *fileWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("App directory changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("App directory watcher error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}
