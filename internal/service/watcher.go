package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
)

const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives every configuration that loaded and validated after
// the watched file changed.
type ReloadFunc func(ctx context.Context, cfg *model.Config)

// Watcher reloads a configuration file when it changes. Invalid
// configurations are logged and skipped.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory of path, so editors replacing the file
// are noticed too.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onReload: onReload,
		watcher:  w,
	}, nil
}

// Do handles file events until ctx is done and closes the watcher.
func (w *Watcher) Do(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			slog.ErrorContext(ctx, "closing config watcher", "error", err)
		}
	}()

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
			if !w.relevant(event) {
				continue
			}
			slog.DebugContext(ctx, "config changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "config watcher error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload(ctx context.Context) {
	f, err := os.Open(w.path)
	if err != nil {
		slog.WarnContext(ctx, "config not readable: ignoring", "path", w.path, "error", err)
		return
	}
	defer f.Close()

	cfg, err := model.LoadConfig(f)
	if err != nil {
		slog.ErrorContext(ctx, "config is not valid: ignoring", "path", w.path, "error", err)
		for _, d := range model.CueErrDetails(err) {
			slog.ErrorContext(ctx, "config error", d.Attr("detail"))
		}
		return
	}
	slog.InfoContext(ctx, "config reloaded", "path", w.path)
	w.onReload(ctx, cfg)
}
