package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Roelanb/webpsync/internal/observability"
)

type Event struct {
	Path string
	Time time.Time
}

type Options struct {
	Directory     string        // absolute path to watch
	Names         []string      // base names to report; empty reports every file
	Debounce      time.Duration // collapse bursts within this window (0 = no debounce)
	Stabilization time.Duration // require file size to be stable for this duration before emitting (0 = no stabilization)
	PollInterval  time.Duration // interval used for stabilization checks
}

// Watcher watches a single directory for files being written or moved in,
// applies debounce and stabilization, and emits paths that are ready to read.
// Editors that save by writing a temp file and renaming it are covered by
// reacting to create and rename as well as write.
type Watcher struct {
	opts  Options
	names map[string]bool
	log   observability.Logger

	mu      sync.Mutex
	w       *fsnotify.Watcher
	cancel  context.CancelFunc
	started bool
	closed  bool
}

func New(opts Options, log observability.Logger) (*Watcher, error) {
	if !filepath.IsAbs(opts.Directory) {
		return nil, errors.New("watch directory must be absolute")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	names := make(map[string]bool, len(opts.Names))
	for _, n := range opts.Names {
		names[n] = true
	}
	return &Watcher{opts: opts, names: names, log: log}, nil
}

// ForFile watches the directory holding path and reports only path itself.
func ForFile(path string, debounce time.Duration, log observability.Logger) (*Watcher, error) {
	return New(Options{
		Directory:     filepath.Dir(path),
		Names:         []string{filepath.Base(path)},
		Debounce:      debounce,
		Stabilization: debounce,
	}, log)
}

// Start begins watching and returns a channel of ready events. The channel
// is closed once ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil, errors.New("watcher already started")
	}
	if w.closed {
		return nil, errors.New("watcher closed")
	}
	if err := os.MkdirAll(w.opts.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fsw.Add(w.opts.Directory); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add watch: %w", err)
	}

	w.w = fsw
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	out := make(chan Event, 16)
	go w.run(ctx, out)
	return out, nil
}

func (w *Watcher) wanted(path string) bool {
	if len(w.names) == 0 {
		return true
	}
	return w.names[filepath.Base(path)]
}

func (w *Watcher) run(ctx context.Context, out chan<- Event) {
	defer func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		_ = w.w.Close()
		close(out)
		w.closed = true
	}()

	pending := make(map[string]time.Time)

	var tick <-chan time.Time
	if w.opts.Debounce > 0 {
		t := time.NewTicker(w.opts.Debounce / 2)
		defer t.Stop()
		tick = t.C
	}

	emit := func(p string) {
		if !w.stable(ctx, p) {
			return
		}
		select {
		case out <- Event{Path: p, Time: time.Now()}:
		case <-ctx.Done():
		}
	}

	flush := func(all bool) {
		now := time.Now()
		for p, t := range pending {
			if all || now.Sub(t) >= w.opts.Debounce {
				delete(pending, p)
				emit(p)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.w.Events:
			if !ok {
				flush(true)
				return
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if !w.wanted(ev.Name) {
				continue
			}
			if w.opts.Debounce > 0 {
				pending[ev.Name] = time.Now()
			} else {
				emit(ev.Name)
			}

		case err, ok := <-w.w.Errors:
			if ok && w.log != nil {
				w.log.Warnw("watch error", "dir", w.opts.Directory, "err", err)
			}

		case <-tick:
			flush(false)
		}
	}
}

// stable waits until p has kept the same size for the stabilization window.
// It reports false when p disappears or is not a regular file.
func (w *Watcher) stable(ctx context.Context, p string) bool {
	if w.opts.Stabilization <= 0 {
		info, err := os.Lstat(p)
		return err == nil && info.Mode().IsRegular()
	}
	size := int64(-1)
	lastChange := time.Now()
	deadline := lastChange.Add(time.Minute)
	for {
		info, err := os.Lstat(p)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
		now := time.Now()
		if info.Size() != size {
			size = info.Size()
			lastChange = now
		}
		if now.Sub(lastChange) >= w.opts.Stabilization || now.After(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// Close stops the watcher if running.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}
