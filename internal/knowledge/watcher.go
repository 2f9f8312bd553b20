package knowledge

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"km24vejviser/internal/logger"
)

// SnapshotWatcher rebuilds a Base whenever its module snapshot file changes.
// The parent directory is watched so that atomic rename-style saves are seen.
type SnapshotWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	base        *Base
	path        string
	log         *logger.Logger
	debounceDur time.Duration
	pendingAt   time.Time
	onReload    func(profiles int, err error)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

func NewSnapshotWatcher(base *Base, path string, log *logger.Logger) (*SnapshotWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &SnapshotWatcher{
		watcher:     w,
		base:        base,
		path:        abs,
		log:         log.With("component", "snapshot_watcher"),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after every reload attempt.
func (sw *SnapshotWatcher) OnReload(fn func(profiles int, err error)) {
	sw.mu.Lock()
	sw.onReload = fn
	sw.mu.Unlock()
}

// Start is non-blocking.
func (sw *SnapshotWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	if err := sw.watcher.Add(filepath.Dir(sw.path)); err != nil {
		sw.mu.Lock()
		sw.running = false
		sw.mu.Unlock()
		return err
	}
	sw.log.Info("watching module snapshot", "path", sw.path)
	go sw.run(ctx)
	return nil
}

// Stop ends the event loop and releases the watcher.
func (sw *SnapshotWatcher) Stop() {
	sw.mu.Lock()
	running := sw.running
	sw.running = false
	sw.mu.Unlock()

	if running {
		close(sw.stopCh)
		<-sw.doneCh
	}
	if err := sw.watcher.Close(); err != nil {
		sw.log.Warn("closing snapshot watcher", "error", err)
	}
}

func (sw *SnapshotWatcher) run(ctx context.Context) {
	defer close(sw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopCh:
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != sw.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			sw.mu.Lock()
			sw.pendingAt = time.Now()
			sw.mu.Unlock()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Warn("snapshot watcher error", "error", err)
		case <-ticker.C:
			sw.flush()
		}
	}
}

func (sw *SnapshotWatcher) flush() {
	sw.mu.Lock()
	due := !sw.pendingAt.IsZero() && time.Since(sw.pendingAt) >= sw.debounceDur
	if due {
		sw.pendingAt = time.Time{}
	}
	cb := sw.onReload
	sw.mu.Unlock()
	if !due {
		return
	}

	n, err := sw.base.LoadSnapshot(sw.path)
	if err != nil {
		sw.log.Warn("module snapshot reload failed", "error", err)
	}
	if cb != nil {
		cb(n, err)
	}
}
