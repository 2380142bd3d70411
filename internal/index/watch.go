package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard/codec"
)

// Watcher calls a reload function after a build directory stops changing
// for the debounce interval. Doxygen rewrites every file in html/search on
// each run, so a burst of events collapses into one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	reload   func(ctx context.Context) error
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher starts watching dir. Call Run to process events.
func NewWatcher(dir string, debounce time.Duration, reload func(ctx context.Context) error) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		reload:   reload,
		watcher:  fw,
		logger:   slog.Default().With("component", "build-watcher", "dir", dir),
	}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("build file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			timer.Reset(w.debounce)
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				w.logger.Error("reload failed", "error", err)
				continue
			}
			w.logger.Info("build reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Ext(event.Name) {
	case codec.FormatDoxygen.Extension(), codec.FormatSegment.Extension(), ".yaml", ".yml":
		return true
	}
	return false
}

// Reloader returns a reload function that re-reads the manifest and resets
// idx with it.
func Reloader(idx *Index, manifestName string, source Source) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		m, err := FetchManifest(ctx, manifestName, source)
		if err != nil {
			return err
		}
		idx.Reset(m)
		return nil
	}
}
