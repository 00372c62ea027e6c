package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mimogate/internal/logging"
)

// Watcher reloads a GatewayConfig file on change and hands the new
// value to OnReload, debounced the way the teacher's fsnotify-based
// MangleWatcher debounces rapid saves.
type Watcher struct {
	path        string
	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	onReload    func(*GatewayConfig)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a config file watcher. onReload is invoked
// (debounced) with every successfully parsed reload.
func NewWatcher(path string, onReload func(*GatewayConfig)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:        path,
		watcher:     w,
		debounceDur: 300 * time.Millisecond,
		onReload:    onReload,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.path); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: cannot watch %s yet: %v", w.path, err)
	}
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the run loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	var pending bool
	timer := time.NewTimer(24 * time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

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
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			timer.Reset(w.debounceDur)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("config watcher error: %v", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			cfg, err := LoadGatewayConfig(w.path)
			if err != nil {
				logging.Get(logging.CategoryBoot).Warn("config reload failed: %v", err)
				continue
			}
			w.onReload(cfg)
		}
	}
}
