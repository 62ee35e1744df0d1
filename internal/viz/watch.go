package viz

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/san-kum/conesim/internal/config"
	"go.uber.org/zap"
)

// debounce absorbs the burst of events editors produce for one save.
const debounce = 100 * time.Millisecond

// WatchConfig watches the YAML file at path and sends its gains each time
// it is written. The directory is watched rather than the file so that
// editors which replace the file on save are still followed. The channel
// is closed when ctx is done.
func WatchConfig(ctx context.Context, path string, logger *zap.Logger) (<-chan GainsMsg, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan GainsMsg, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				pending = time.After(debounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watch", zap.Error(err))
			case <-pending:
				pending = nil
				msg := load(abs)
				if msg.Err != nil {
					logger.Warn("reload", zap.String("path", abs), zap.Error(msg.Err))
				} else {
					logger.Info("reload", zap.String("path", abs), zap.Any("gains", msg.Gains))
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func load(path string) GainsMsg {
	cfg, err := config.Load(path)
	if err != nil {
		return GainsMsg{Err: err}
	}
	return GainsMsg{Gains: cfg.Controller.Gains}
}
