// Package watch turns filesystem activity under the coordination tree into
// debounced change notifications.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounce coalesces bursts such as temp-file-then-rename writes.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultPoll re-evaluates even without events, since locks go stale by clock alone.
	DefaultPoll = 30 * time.Second
)

// ErrClosed reports that the underlying watcher was closed.
var ErrClosed = errors.New("watcher closed")

// Options configures a Watcher. A zero Poll disables periodic notification.
type Options struct {
	Debounce time.Duration
	Poll     time.Duration
	OnError  func(error)
}

// Watcher watches directory trees recursively.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	poll     time.Duration
	onError  func(error)
}

// New watches every existing directory under roots. Missing roots are skipped.
func New(roots []string, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		debounce: opts.Debounce,
		poll:     opts.Poll,
		onError:  opts.OnError,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run calls notify after each debounced burst of changes and on every poll
// tick. It returns nil when ctx is done.
func (w *Watcher) Run(ctx context.Context, notify func()) error {
	var debounce <-chan time.Time
	var timer *time.Timer
	var tick <-chan time.Time
	if w.poll > 0 {
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return ErrClosed
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.reportError(err)
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			debounce = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return ErrClosed
			}
			w.reportError(err)
		case <-debounce:
			debounce = nil
			notify()
		case <-tick:
			notify()
		}
	}
}

// Until evaluates check now and after every notification until it reports
// true, fails, or ctx is done.
func (w *Watcher) Until(ctx context.Context, check func(context.Context) (bool, error)) error {
	done, err := check(ctx)
	if err != nil || done {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := make(chan struct{}, 1)
	runErr := make(chan error, 1)
	go func() {
		runErr <- w.Run(runCtx, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			if err == nil {
				return ctx.Err()
			}
			return err
		case <-changes:
			done, err := check(ctx)
			if err != nil || done {
				return err
			}
		}
	}
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch tree %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// relevant drops permission-only events and flock guard files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return base != ".guard" && base != ".graph.lock"
}
