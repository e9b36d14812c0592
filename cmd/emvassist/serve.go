package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Gdockery/synerex-platform-sub002/internal/api"
	"github.com/Gdockery/synerex-platform-sub002/internal/buildinfo"
	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
	"github.com/Gdockery/synerex-platform-sub002/internal/web"
)

// runServe handles the "emvassist serve" subcommand. It starts the API
// server, the page watcher and the backend health poller, and blocks
// until a shutdown signal arrives or one of them fails.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. The health poller and page watcher exit
//  4. The browser page and the store are closed
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger, _ := newLogger(stdout, slog.LevelInfo, "text", "")
	logger.Info("starting EM&V assistant", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the level, format and file are known.
	logger, logCloser := newLogger(stdout, configuredLevel(cfg, slog.LevelInfo), cfg.LogFormat, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"path", cfgPath,
		"listen", cfg.Listen.Addr(),
		"ai_url", cfg.AI.BaseURL,
		"storage", cfg.Storage.Path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{
		Indicator: logIndicator{logger: logger.With("component", "indicator")},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	dashboard := web.NewWebServer(web.Config{
		Knowledge:    a.knowledge,
		StatusFunc:   func() connwatch.ServiceStatus { return a.ai.Status() },
		AnalysisFunc: a.watcher.Latest,
		ProjectFunc: func() pagecontext.Project {
			return a.extractor.Project(context.Background())
		},
		Logger: logger.With("component", "web"),
	})

	server := api.NewServer(api.Config{
		Addr:      cfg.Listen.Addr(),
		Assistant: a.assistant,
		Knowledge: a.knowledge,
		AI:        a.ai,
		Analysis:  a.watcher,
		Bus:       a.bus,
		Sessions: api.SessionConfig{
			TTL:       cfg.API.SessionTTL,
			RateLimit: cfg.API.RateLimit,
			Burst:     cfg.API.Burst,
		},
		Logger:     logger.With("component", "api"),
		ExtraRoute: func(mux *http.ServeMux) { dashboard.RegisterRoutes(mux) },
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.ai.Start(gctx)
		<-gctx.Done()
		a.ai.Stop()
		return nil
	})

	g.Go(func() error {
		if err := a.watchPage(gctx); err != nil {
			return fmt.Errorf("watch page: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("API server: %w", err)
		}
		// A clean return means shutdown; stop the other workers too.
		cancel()
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// logIndicator reports backend availability changes in the log, in
// place of the chat widget's status dot.
type logIndicator struct {
	logger *slog.Logger
}

func (l logIndicator) SetStatus(connected bool, label string) {
	l.logger.Info("AI status", "connected", connected, "label", label)
}
