package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// snapshot is one successfully loaded version of the config file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher reloads a config file when it changes on disk. Edits that fail to
// parse or validate are logged and skipped; the last good config stays in
// effect. Only the log level and the voice table can change at runtime, the
// callback decides what to do with the rest.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	prepare  func(*Config)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPrepare runs fn on every freshly loaded config before it is compared,
// e.g. to fill API keys from the environment with [ApplyEnv].
func WithPrepare(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.prepare = fn }
}

// NewWatcher loads path and starts polling it. The initial load must succeed.
// onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap

	go w.loop()
	return w, nil
}

// Current returns the config most recently accepted by the watcher.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload picks up a changed file. An unchanged mtime skips the read; a
// changed mtime with identical content only records the new mtime.
func (w *Watcher) reload() {
	fi, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := fi.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.last
	if snap.sum == prev.sum {
		w.last.mtime = snap.mtime
		w.mu.Unlock()
		return
	}
	w.last = snap
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, snap.cfg)
	}
}

// read loads, validates and prepares the file. The hash covers the raw bytes
// so whitespace-only edits still count as a change.
func (w *Watcher) read() (snapshot, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	if w.prepare != nil {
		w.prepare(cfg)
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: fi.ModTime()}, nil
}
