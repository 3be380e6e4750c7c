package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/callisto/pkg/policy"
)

// WatchConfig tunes how a FileSource reacts to filesystem events.
type WatchConfig struct {
	// DebounceInterval is the quiet period after the last event before a
	// reload runs. Zero means the default of 100ms.
	DebounceInterval time.Duration
}

// DefaultWatchConfig returns the watcher defaults.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{DebounceInterval: 100 * time.Millisecond}
}

// OnChangeFunc receives each successfully reloaded policy.
type OnChangeFunc func(p *policy.Policy)

// FileSource loads a policy from a YAML file and can watch it for edits.
type FileSource struct {
	path     string
	cfg      WatchConfig
	logger   *slog.Logger
	debounce *debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileSource returns a source for the policy file at path.
func NewFileSource(path string, cfg WatchConfig, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultWatchConfig().DebounceInterval
	}
	return &FileSource{
		path:     path,
		cfg:      cfg,
		logger:   logger.With("component", "source", "path", path),
		debounce: newDebouncer(cfg.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Path returns the watched file path.
func (s *FileSource) Path() string { return s.path }

// Load reads and parses the policy file once.
func (s *FileSource) Load() (*policy.Policy, error) {
	return LoadFile(s.path)
}

// Watch blocks, reloading the policy file on each debounced change and
// passing the result to onChange. A file revision that fails to parse is
// logged and dropped so the previous policy stays in effect. Watch returns
// when the context is cancelled or Stop is called.
//
// The parent directory is watched rather than the file itself so editors
// that replace the file by rename keep triggering events.
func (s *FileSource) Watch(ctx context.Context, onChange OnChangeFunc) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("source already watching %q", s.path)
	}
	s.running = true
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	defer func() {
		watcher.Close()
		s.debounce.stop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %q: %w", dir, err)
	}

	s.logger.Info("policy file watcher started",
		"debounce_ms", s.cfg.DebounceInterval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy file watcher stopped", "reason", "context cancelled")
			return nil

		case <-s.stopCh:
			s.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !s.shouldProcess(event) {
				continue
			}
			s.logger.Debug("policy file event", "op", event.Op.String())
			s.debounce.trigger(func() {
				s.reload(onChange)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite transient errors.
			s.logger.Error("policy file watcher error", "error", err)
		}
	}
}

// Stop ends an active Watch call and waits for it to return.
func (s *FileSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

func (s *FileSource) shouldProcess(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(s.path)
}

func (s *FileSource) reload(onChange OnChangeFunc) {
	p, err := s.Load()
	if err != nil {
		s.logger.Error("policy reload skipped", "error", err)
		return
	}
	s.logger.Info("policy reloaded", "policy_id", p.ID, "policy_version", p.Version)
	onChange(p)
}

// debouncer collapses a burst of events into one callback after a quiet
// period.
type debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()
		if cb != nil && !stopped {
			cb()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
