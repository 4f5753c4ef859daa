package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] polls the config file.
const DefaultWatchInterval = 5 * time.Second

// fileState identifies one version of the config file. The mtime is only a
// cheap pre-check; two versions are the same when their hashes match.
type fileState struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// Watcher reloads a config file when it changes and reports what changed.
// An edit that fails to parse or validate is logged and ignored; the last
// good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(ConfigDiff, *Config)

	mu      sync.Mutex
	current *Config
	state   fileState
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

// NewWatcher loads path and returns a Watcher holding it. onChange, when not
// nil, receives the [Diff] of every accepted reload that changed something.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(ConfigDiff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, o := range opts {
		o(w)
	}
	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.state = cfg, st
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config reload rejected, keeping the running config", "path", w.path, "err", err)
			}
		}
	}
}

// Check looks at the file once. It returns the diff it applied, which is
// empty when the file is unchanged, or the error that made it keep the
// current config.
func (w *Watcher) Check() (ConfigDiff, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, err
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.state.mtime)
	w.mu.Unlock()
	if unchanged {
		return ConfigDiff{}, nil
	}

	cfg, st, err := w.read()
	if err != nil {
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	if st.hash == w.state.hash {
		w.state = st
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	d := Diff(w.current, cfg)
	w.current, w.state = cfg, st
	w.mu.Unlock()

	if d.Changed() {
		slog.Info("configuration reloaded", "path", w.path, "restart_required", d.RestartRequired)
		if w.onChange != nil {
			w.onChange(d, cfg)
		}
	}
	return d, nil
}

func (w *Watcher) read() (*Config, fileState, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
