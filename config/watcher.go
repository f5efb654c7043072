package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileEvent is one observed change to a watched file.
type FileEvent struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// FileWatcher polls configuration files and fires callbacks when their
// modification time changes. Polling keeps it dependency-free and works
// on bind mounts where inotify is unreliable.
type FileWatcher struct {
	mu sync.Mutex

	paths        []string
	pollInterval time.Duration
	callbacks    []func(FileEvent)
	logger       *zap.Logger

	running      bool
	stop         chan struct{}
	lastModTimes map[string]time.Time
}

// NewFileWatcher creates a watcher over the given paths. A zero interval
// defaults to two seconds.
func NewFileWatcher(paths []string, pollInterval time.Duration, logger *zap.Logger) *FileWatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		paths:        paths,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("component", "config_watcher")),
		lastModTimes: make(map[string]time.Time),
	}
}

// OnChange registers a callback. Must be called before Start.
func (w *FileWatcher) OnChange(fn func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins polling until Stop is called or ctx is done.
func (w *FileWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}
	stop := w.stop
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

// Stop halts polling.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stop)
}

func (w *FileWatcher) poll() {
	w.mu.Lock()
	paths := w.paths
	callbacks := append([]func(FileEvent){}, w.callbacks...)
	w.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		w.mu.Lock()
		last, seen := w.lastModTimes[path]
		changed := !seen || info.ModTime().After(last)
		if changed {
			w.lastModTimes[path] = info.ModTime()
		}
		w.mu.Unlock()

		if changed && seen {
			event := FileEvent{Path: path, Timestamp: time.Now()}
			w.logger.Info("config file changed", zap.String("path", path))
			for _, fn := range callbacks {
				fn(event)
			}
		}
	}
}
