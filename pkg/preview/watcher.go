package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches bursts of writes to the preview document.
const DefaultDebounce = 150 * time.Millisecond

// Watcher notifies viewers when the preview document is changed by someone
// other than the Publisher, for example an agent patch.
type Watcher struct {
	pub      *Publisher
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher for pub's preview directory. Run starts it.
func NewWatcher(pub *Publisher, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create preview watcher: %w", err)
	}
	return &Watcher{pub: pub, watcher: w, debounce: debounce, logger: logger}, nil
}

// Run watches until ctx is cancelled and then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	dir := w.pub.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info("watching preview directory", zap.String("dir", dir))

	// Seed with what is on disk so startup does not count as a change.
	if doc, err := os.ReadFile(w.pub.Path()); err == nil {
		w.pub.observe(doc)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != File {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("preview file event", zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("preview watcher error", zap.Error(err))

		case <-timer.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	doc, err := os.ReadFile(w.pub.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("failed to read preview", zap.Error(err))
		}
		return
	}
	if w.pub.observe(doc) {
		w.logger.Info("preview changed on disk")
		w.pub.notify("watcher")
	}
}
