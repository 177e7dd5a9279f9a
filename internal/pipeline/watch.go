package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change set is processed.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports debounced sets of changed artifacts under a discovery root.
type Watcher struct {
	watcher       *fsnotify.Watcher    // Underlying fsnotify watcher
	discovery     *Discovery           // Decides which paths are watched
	logger        *log.Logger          // Diagnostics for watch errors
	debounceTime  time.Duration        // Quiet period before firing callback
	callback      func(files []string) // Callback to invoke with changed files
	ctx           context.Context      // Context for lifecycle management
	cancel        context.CancelFunc   // Cancel function for internal context
	accumulated   map[string]bool      // Accumulated file changes
	accumulatedMu sync.Mutex           // Protects accumulated map
	debounceTimer *time.Timer          // Current debounce timer
	timerMu       sync.Mutex           // Protects debounce timer
	stopOnce      sync.Once            // Ensures Stop is idempotent
	doneCh        chan struct{}        // Signals watch goroutine has finished
}

// NewWatcher watches every non-ignored directory under d's root. A zero debounce
// means DefaultDebounce.
func NewWatcher(d *Discovery, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	w := &Watcher{
		watcher:      fsw,
		discovery:    d,
		logger:       logger,
		debounceTime: debounce,
		accumulated:  make(map[string]bool),
		doneCh:       make(chan struct{}),
	}

	if err := w.addDirectoriesRecursively(d.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins watching. The callback runs on the watch goroutine, so events
// arriving while it runs are batched into the next change set.
func (w *Watcher) Start(ctx context.Context, callback func(files []string)) error {
	if callback == nil {
		return nil
	}

	w.callback = callback
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.watch()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.doneCh
		} else {
			close(w.doneCh)
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watch() {
	defer close(w.doneCh)

	fireCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.ctx.Done():
			w.stopDebounceTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.discovery.shouldIgnore(w.discovery.Rel(event.Name)) {
						if err := w.addDirectoriesRecursively(event.Name); err != nil {
							w.logger.Warn("failed to watch new directory", "path", event.Name, "err", err)
						}
					}
					continue
				}
			}

			if !w.shouldProcessEvent(event) {
				continue
			}

			w.accumulatedMu.Lock()
			w.accumulated[event.Name] = true
			w.accumulatedMu.Unlock()

			w.resetDebounceTimer(fireCh)

		case <-fireCh:
			w.handleDebounceExpired()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "err", err)
		}
	}
}

// handleDebounceExpired fires the callback with the accumulated files, sorted.
func (w *Watcher) handleDebounceExpired() {
	w.accumulatedMu.Lock()
	if len(w.accumulated) == 0 {
		w.accumulatedMu.Unlock()
		return
	}

	files := make([]string, 0, len(w.accumulated))
	for file := range w.accumulated {
		files = append(files, file)
	}
	w.accumulated = make(map[string]bool)
	w.accumulatedMu.Unlock()

	sort.Strings(files)
	w.callback(files)
}

// resetDebounceTimer restarts the quiet period.
func (w *Watcher) resetDebounceTimer(fireCh chan struct{}) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounceTime, func() {
		select {
		case fireCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopDebounceTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
}

// shouldProcessEvent keeps writes, creates, removes and renames of files the
// discovery selects.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return w.discovery.Match(event.Name)
}

// addDirectoriesRecursively adds every non-ignored directory in the tree.
func (w *Watcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == rootPath {
				return err
			}
			w.logger.Warn("error accessing path", "path", path, "err", err)
			return nil
		}

		if !info.IsDir() {
			return nil
		}
		if path != w.discovery.Root() && w.discovery.shouldIgnore(w.discovery.Rel(path)) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "err", err)
		}
		return nil
	})
}

// Watch processes change sets under d's root until ctx is cancelled. Changed
// files are reprocessed and handed to handle; removed files are logged and skipped.
// Failures are logged and never stop the watch.
func (p *Pipeline) Watch(ctx context.Context, d *Discovery, debounce time.Duration, handle Handler, progress ProgressReporter) error {
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}

	w, err := NewWatcher(d, debounce, p.logger)
	if err != nil {
		return err
	}

	err = w.Start(ctx, func(files []string) {
		var present []string
		for _, f := range files {
			if _, err := os.Stat(f); err != nil {
				p.logger.Info("artifact removed", "path", f)
				continue
			}
			present = append(present, f)
		}
		if len(present) == 0 {
			return
		}
		p.logger.Info("changes detected", "count", len(present))
		if _, err := p.ProcessBatch(ctx, d, present, handle, progress); err != nil {
			p.logger.Warn("change set had failures", "err", err)
		}
	})
	if err != nil {
		w.Stop()
		return err
	}

	<-ctx.Done()
	return w.Stop()
}
