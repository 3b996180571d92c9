package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of fsnotify events an editor save
// produces into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher hot-reloads a config file. A rewrite that fails validation is
// rejected: the previous configuration stays live and the error list is
// logged.
type Watcher struct {
	path    string
	log     *zap.Logger
	fs      *fsnotify.Watcher
	current atomic.Pointer[Config]

	mu        sync.Mutex
	callbacks []func(*Config)

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher loads path and starts watching it for changes. The logger
// may be nil.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	// Watch the directory: editors and config rollouts replace the file,
	// and a watch on the old inode would go quiet.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{
		path: path,
		log:  log,
		fs:   fs,
		done: make(chan struct{}),
	}
	w.current.Store(initial)
	go w.loop()

	log.Info("config hot reload enabled", zap.String("path", path))
	return w, nil
}

// Config returns the live configuration. The returned value must be
// treated as read-only.
func (w *Watcher) Config() *Config {
	return w.current.Load()
}

// OnChange registers a callback invoked with each accepted reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fs.Close()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload rejected, keeping previous",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	w.current.Store(cfg)
	w.log.Info("config reloaded", zap.String("path", w.path))

	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}
