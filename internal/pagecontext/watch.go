package pagecontext

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Gdockery/synerex-platform-sub002/internal/events"
)

// DefaultPollInterval is used for live pages when no interval is set.
const DefaultPollInterval = 2 * time.Second

// defaultDebounce collapses the burst of events an editor save produces.
const defaultDebounce = 50 * time.Millisecond

// Watcher keeps the latest analysis snapshot up to date in the
// background. Writes are last-write-wins; readers never block.
type Watcher struct {
	extractor *Extractor
	bus       *events.Bus
	logger    *slog.Logger
	debounce  time.Duration

	latest atomic.Pointer[Analysis]
}

// NewWatcher creates a watcher over extractor. bus may be nil.
func NewWatcher(extractor *Extractor, bus *events.Bus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		extractor: extractor,
		bus:       bus,
		logger:    logger,
		debounce:  defaultDebounce,
	}
}

// Latest returns the most recent non-empty snapshot, if any.
func (w *Watcher) Latest() (Analysis, bool) {
	if w == nil {
		return Analysis{}, false
	}
	a := w.latest.Load()
	if a == nil {
		return Analysis{}, false
	}
	return *a, true
}

// Refresh re-reads the page once and stores the snapshot when its
// content changed. It reports whether anything changed.
func (w *Watcher) Refresh(ctx context.Context) bool {
	next := w.extractor.Analysis(ctx)
	if next.IsZero() {
		return false
	}
	if prev := w.latest.Load(); prev != nil && prev.Equal(next) {
		return false
	}
	w.latest.Store(&next)

	w.logger.Debug("analysis results updated",
		"results", len(next.Results),
		"metrics", len(next.Metrics),
	)
	w.bus.Emit(events.SourcePage, events.KindResultsUpdated, map[string]any{
		"results": len(next.Results),
		"metrics": len(next.Metrics),
	})
	return true
}

// Poll refreshes every interval until ctx is cancelled. It is used for
// live browser pages, which offer no change notification the reader can
// subscribe to.
func (w *Watcher) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// WatchFile refreshes whenever the HTML file at path changes, until ctx
// is cancelled. The parent directory is watched so that editors which
// save by rename are still seen.
func (w *Watcher) WatchFile(ctx context.Context, path string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w.Refresh(ctx)

	// A stopped timer whose channel is drained acts as the debounce.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("page watcher error", "path", path, "error", err)

		case <-timer.C:
			w.Refresh(ctx)
		}
	}
}
