package connector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads a Registry when its definitions directory changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	dir      string
	debounce time.Duration
	logger   *slog.Logger
	onReload func(count int, err error)
}

type WatcherOptions struct {
	Registry *Registry
	Dir      string
	Debounce time.Duration
	Logger   *slog.Logger
	OnReload func(count int, err error)
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(opts.Dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", opts.Dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	return &Watcher{
		watcher:  w,
		registry: opts.Registry,
		dir:      opts.Dir,
		debounce: debounce,
		logger:   logger.With("component", "definitions_watcher"),
		onReload: opts.OnReload,
	}, nil
}

// Run blocks until ctx is cancelled, reloading the registry after changes
// settle.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	count, err := w.registry.Reload(w.dir)
	if err != nil {
		w.logger.Error("definitions reload failed, keeping previous set", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("definitions reloaded", "dir", w.dir, "types", count)
	}
	if w.onReload != nil {
		w.onReload(count, err)
	}
}
