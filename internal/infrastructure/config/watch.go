package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk.
//
// The parent directory is watched rather than the file itself because most
// editors save by writing a temp file and renaming it over the original,
// which drops a watch held on the old inode.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)
}

// NewWatcher creates a watcher for path.
//
// Parameters:
//   - path: Configuration file to reload
//   - onChange: Receives every loaded and validated configuration
//   - onError: Receives load failures; may be nil
//
// Returns:
//   - *Watcher: Idle until Run is called
func NewWatcher(path string, onChange func(*Config), onError func(error)) *Watcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		onError:  onError,
	}
}

// Run watches the file until ctx is cancelled.
//
// Event handling:
//  1. Events for other files in the directory are ignored
//  2. A burst of events restarts the debounce timer
//  3. When the timer fires the file is loaded; onChange or onError runs
//
// Returns:
//   - error: nil on cancellation, or a watcher setup error
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck // shutdown path

	target, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.onError(fmt.Errorf("config watcher: %w", err))

		case <-timerCh:
			timerCh = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.onError(err)
				continue
			}
			w.onChange(cfg)
		}
	}
}
