package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Gdockery/synerex-platform-sub002/internal/aiclient"
	"github.com/Gdockery/synerex-platform-sub002/internal/assistant"
	"github.com/Gdockery/synerex-platform-sub002/internal/config"
	"github.com/Gdockery/synerex-platform-sub002/internal/events"
	"github.com/Gdockery/synerex-platform-sub002/internal/formfield"
	"github.com/Gdockery/synerex-platform-sub002/internal/httpkit"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
	"github.com/Gdockery/synerex-platform-sub002/internal/localstore"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       *events.Bus
	store     *localstore.Store
	memory    *memory.Store
	knowledge *knowledge.Base
	extractor *pagecontext.Extractor
	watcher   *pagecontext.Watcher
	ai        *aiclient.Client
	assistant *assistant.Assistant

	closers []func() error
}

// appOptions overrides parts of the configuration for one invocation.
type appOptions struct {
	// PageFile replaces page.html_file and page.url.
	PageFile string
	// Indicator receives backend availability changes.
	Indicator aiclient.Indicator
}

// newApp wires the assistant from cfg. The caller must Close the result.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, bus: events.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, a.memory, err = openMemory(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	a.knowledge, err = loadKnowledge(cfg, logger)
	if err != nil {
		return nil, err
	}

	source, err := a.pageSource(ctx, opts.PageFile)
	if err != nil {
		return nil, err
	}
	a.extractor = pagecontext.NewExtractor(pagecontext.ExtractorConfig{
		Source: source,
		Logger: logger.With("component", "page"),
	})
	a.watcher = pagecontext.NewWatcher(a.extractor, a.bus, logger.With("component", "page-watcher"))

	a.ai = aiclient.New(aiclient.Config{
		BaseURL:      cfg.AI.BaseURL,
		HTTPClient:   httpkit.NewClient(),
		History:      a.memory,
		Extractor:    a.extractor,
		Bus:          a.bus,
		Indicator:    opts.Indicator,
		PollInterval: cfg.AI.PollInterval,
		Logger:       logger.With("component", "ai"),
	})

	a.assistant = assistant.New(assistant.Config{
		Remote:    a.ai,
		Extractor: a.extractor,
		Knowledge: a.knowledge,
		Memory:    a.memory,
		Analysis:  a.watcher,
		Bus:       a.bus,
		Logger:    logger.With("component", "assistant"),
	})

	return a, nil
}

// openMemory opens the store at storage.path and the history and
// preferences kept in it.
func openMemory(cfg *config.Config, logger *slog.Logger) (*localstore.Store, *memory.Store, error) {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	store, err := localstore.NewStore(cfg.Storage.Path, cfg.Storage.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return store, memory.New(store.Bucket(memory.Namespace), logger.With("component", "memory")), nil
}

// loadKnowledge loads the built-in reference plus the configured
// overlay. A missing overlay file is not an error.
func loadKnowledge(cfg *config.Config, logger *slog.Logger) (*knowledge.Base, error) {
	overlay := cfg.Knowledge.OverlayFile
	if overlay != "" {
		if _, err := os.Stat(overlay); errors.Is(err, os.ErrNotExist) {
			logger.Warn("knowledge overlay not found, using built-in reference", "path", overlay)
			overlay = ""
		}
	}
	kb, err := knowledge.Load(overlay)
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}
	return kb, nil
}

// pageSource picks where project fields are read from. A nil source
// means no page is configured and questions carry no project context.
func (a *app) pageSource(ctx context.Context, override string) (pagecontext.Source, error) {
	switch {
	case override != "":
		return pagecontext.FileSource(override), nil
	case a.cfg.Page.HTMLFile != "":
		return pagecontext.FileSource(a.cfg.Page.HTMLFile), nil
	case a.cfg.Page.URL != "":
		page, err := formfield.OpenRodPage(ctx, a.cfg.Page.BrowserURL, a.cfg.Page.URL)
		if err != nil {
			return nil, fmt.Errorf("open analysis page: %w", err)
		}
		a.closers = append(a.closers, page.Close)
		a.logger.Info("reading analysis page from browser", "url", a.cfg.Page.URL)
		return pagecontext.StaticSource(page), nil
	default:
		return nil, nil
	}
}

// watchPage keeps the latest analysis snapshot current until ctx ends.
// Files are watched for changes; browser pages are polled.
func (a *app) watchPage(ctx context.Context) error {
	if a.cfg.Page.HTMLFile != "" {
		return a.watcher.WatchFile(ctx, a.cfg.Page.HTMLFile)
	}
	if a.cfg.Page.URL != "" {
		return a.watcher.Poll(ctx, a.cfg.Page.WatchInterval)
	}
	<-ctx.Done()
	return nil
}

// Close releases the browser page and the store, in reverse order of
// acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
