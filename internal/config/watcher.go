package config

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// pollInterval is how often the watcher checks the config file's mtime.
const pollInterval = 10 * time.Second

// Watcher holds an atomically-swapped, read-mostly Config snapshot, re-read
// from disk only when the file's mtime advances.
type Watcher struct {
	path    string
	log     *zap.Logger
	current atomic.Pointer[Config]
	mtime   time.Time
}

// NewWatcher loads path once and returns a Watcher exposing that initial
// snapshot.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, log: log, mtime: info.ModTime()}
	w.current.Store(&cfg)
	return w, nil
}

// Current returns the latest applied Config snapshot.
func (w *Watcher) Current() Config {
	return *w.current.Load()
}

// Run polls path every pollInterval until ctx is cancelled, swapping in a
// freshly loaded snapshot whenever the file's mtime has advanced.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("stat config file", zap.String("path", w.path), zap.Error(err))
		return
	}
	if !info.ModTime().After(w.mtime) {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("reloading config file", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mtime = info.ModTime()
	w.current.Store(&cfg)
	w.log.Info("config reloaded", zap.String("path", w.path))
}
